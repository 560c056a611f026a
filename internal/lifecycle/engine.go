package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulsecast/internal/models"
	"pulsecast/internal/observability/metrics"
	"pulsecast/internal/store"
)

// maxApplyAttempts bounds optimistic-concurrency retries. A conditional
// update that still conflicts after a fresh read loses the race to a writer
// that already achieved the intended end state, so the event is safe to drop.
const maxApplyAttempts = 2

// Outcome reports how an event was handled.
type Outcome string

const (
	// OutcomeApplied means the event caused a state transition.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means the event was valid but required no change.
	OutcomeNoop Outcome = "noop"
	// OutcomeDropped means the event lost its conflict retry and was discarded.
	OutcomeDropped Outcome = "dropped"
)

// Engine applies lifecycle events against the record store. Every write is a
// compare-and-swap keyed on the record version; conflicts trigger one
// re-read-and-retry before the event is dropped with a warning.
type Engine struct {
	store  store.Store
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs an Engine. A nil logger falls back to slog.Default.
func NewEngine(st store.Store, policy Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SessionStarted handles a session-started event identified by the provider's
// session key. Unknown sessions are a benign no-op: the local record may not
// have committed yet, or the event is stale.
func (e *Engine) SessionStarted(ctx context.Context, providerSessionID string) (Outcome, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		session, ok, err := e.store.GetSessionByProviderID(ctx, providerSessionID)
		if err != nil {
			return OutcomeNoop, fmt.Errorf("resolve session %s: %w", providerSessionID, err)
		}
		if !ok {
			e.logger.Debug("session-started for unknown session", "provider_session_id", providerSessionID)
			return OutcomeNoop, nil
		}

		next, changed := StartSession(session, e.now())
		if !changed {
			return OutcomeNoop, nil
		}

		update := store.SessionUpdate{Status: &next.Status, StartedAt: &next.StartedAt}
		if _, err := e.store.UpdateSession(ctx, session.ID, session.Version, update); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return OutcomeNoop, nil
			}
			return OutcomeNoop, fmt.Errorf("apply session-started: %w", err)
		}
		e.logger.Info("session live", "session_id", session.ID, "provider_session_id", providerSessionID)
		metrics.SessionStarted()
		return OutcomeApplied, nil
	}
	e.logger.Warn("dropping session-started after conflict retry", "provider_session_id", providerSessionID)
	metrics.ConflictDropped()
	return OutcomeDropped, nil
}

// SessionIdle handles a session-idle event. A live session transitions to
// ended and its recording is materialized. A session that is already ended
// still re-runs the materializer so a crash between the transition and the
// recording insert heals on redelivery. A session still configuring is left
// untouched: it never went live and gets no recording.
func (e *Engine) SessionIdle(ctx context.Context, providerSessionID string) (Outcome, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		session, ok, err := e.store.GetSessionByProviderID(ctx, providerSessionID)
		if err != nil {
			return OutcomeNoop, fmt.Errorf("resolve session %s: %w", providerSessionID, err)
		}
		if !ok {
			e.logger.Debug("session-idle for unknown session", "provider_session_id", providerSessionID)
			return OutcomeNoop, nil
		}

		next, changed := EndSession(session, e.now())
		if !changed {
			if session.Status == models.SessionEnded {
				return OutcomeNoop, e.materialize(ctx, session)
			}
			return OutcomeNoop, nil
		}

		update := store.SessionUpdate{Status: &next.Status, EndedAt: next.EndedAt}
		updated, err := e.store.UpdateSession(ctx, session.ID, session.Version, update)
		if err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return OutcomeNoop, nil
			}
			return OutcomeNoop, fmt.Errorf("apply session-idle: %w", err)
		}
		e.logger.Info("session ended", "session_id", session.ID, "provider_session_id", providerSessionID)
		metrics.SessionEnded()
		return OutcomeApplied, e.materialize(ctx, updated)
	}
	e.logger.Warn("dropping session-idle after conflict retry", "provider_session_id", providerSessionID)
	metrics.ConflictDropped()
	return OutcomeDropped, nil
}

// EndSessionByID applies the creator-requested stop path by internal session
// ID. It shares the idle transition and materializer with the webhook path.
func (e *Engine) EndSessionByID(ctx context.Context, sessionID string) (models.Session, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		session, ok, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			return models.Session{}, fmt.Errorf("resolve session %s: %w", sessionID, err)
		}
		if !ok {
			return models.Session{}, store.ErrNotFound
		}

		next, changed := EndSession(session, e.now())
		if !changed {
			// Stopping a session that never went live closes it without a
			// recording; stopping an ended session is idempotent.
			if session.Status == models.SessionEnded {
				return session, nil
			}
			ended := models.SessionEnded
			closed, err := e.store.UpdateSession(ctx, session.ID, session.Version, store.SessionUpdate{Status: &ended})
			if err != nil {
				if errors.Is(err, store.ErrVersionConflict) {
					continue
				}
				return models.Session{}, fmt.Errorf("close session: %w", err)
			}
			return closed, nil
		}

		update := store.SessionUpdate{Status: &next.Status, EndedAt: next.EndedAt}
		updated, err := e.store.UpdateSession(ctx, session.ID, session.Version, update)
		if err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return models.Session{}, fmt.Errorf("stop session: %w", err)
		}
		metrics.SessionEnded()
		if err := e.materialize(ctx, updated); err != nil {
			return updated, err
		}
		return updated, nil
	}
	return models.Session{}, fmt.Errorf("stop session %s: %w", sessionID, store.ErrVersionConflict)
}

// materialize ensures exactly one pending recording exists for an ended
// session. Create-if-absent makes duplicate idle deliveries converge on the
// same record. Sessions that never went live are skipped.
func (e *Engine) materialize(ctx context.Context, session models.Session) error {
	if session.Status != models.SessionEnded || session.StartedAt.IsZero() || session.EndedAt == nil {
		return nil
	}
	recording := models.Recording{
		StreamID:        session.ID,
		CreatorID:       session.CreatorID,
		Status:          models.RecordingPending,
		StreamStartedAt: session.StartedAt,
		StreamEndedAt:   *session.EndedAt,
		CreatedAt:       e.now(),
	}
	created, isNew, err := e.store.CreateRecordingIfAbsent(ctx, recording)
	if err != nil {
		return fmt.Errorf("materialize recording for session %s: %w", session.ID, err)
	}
	if isNew {
		e.logger.Info("recording materialized", "recording_id", created.ID, "session_id", session.ID)
		metrics.RecordingEvent("materialized")
	}
	return nil
}

// AssetReady handles an asset-ready event. The recording is resolved by the
// provider asset ID first, then by the session the asset belongs to. Unknown
// assets are a benign no-op.
func (e *Engine) AssetReady(ctx context.Context, asset AssetDetails) (Outcome, error) {
	recording, ok, err := e.resolveRecording(ctx, asset)
	if err != nil {
		return OutcomeNoop, err
	}
	if !ok {
		e.logger.Debug("asset-ready for unknown recording",
			"provider_asset_id", asset.ProviderAssetID,
			"provider_session_id", asset.ProviderSessionID)
		return OutcomeNoop, nil
	}

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		next, changed := CompleteRecording(recording, asset, e.policy)
		if !changed {
			return OutcomeNoop, nil
		}

		update := store.RecordingUpdate{
			Status:          &next.Status,
			ProviderAssetID: &next.ProviderAssetID,
			PlaybackURL:     &next.PlaybackURL,
			DurationSeconds: &next.DurationSeconds,
			FileSizeBytes:   &next.FileSizeBytes,
		}
		if _, err := e.store.UpdateRecording(ctx, recording.ID, recording.Version, update); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				fresh, ok, readErr := e.store.GetRecording(ctx, recording.ID)
				if readErr != nil {
					return OutcomeNoop, fmt.Errorf("re-read recording %s: %w", recording.ID, readErr)
				}
				if !ok {
					return OutcomeNoop, nil
				}
				recording = fresh
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return OutcomeNoop, nil
			}
			return OutcomeNoop, fmt.Errorf("apply asset-ready: %w", err)
		}
		e.logger.Info("recording completed",
			"recording_id", recording.ID,
			"status", next.Status,
			"duration_seconds", next.DurationSeconds)
		metrics.RecordingEvent(string(next.Status))
		return OutcomeApplied, nil
	}
	e.logger.Warn("dropping asset-ready after conflict retry", "recording_id", recording.ID)
	metrics.ConflictDropped()
	return OutcomeDropped, nil
}

func (e *Engine) resolveRecording(ctx context.Context, asset AssetDetails) (models.Recording, bool, error) {
	if asset.ProviderAssetID != "" {
		recording, ok, err := e.store.GetRecordingByAssetID(ctx, asset.ProviderAssetID)
		if err != nil {
			return models.Recording{}, false, fmt.Errorf("resolve recording by asset %s: %w", asset.ProviderAssetID, err)
		}
		if ok {
			return recording, true, nil
		}
	}
	if asset.ProviderSessionID == "" {
		return models.Recording{}, false, nil
	}
	session, ok, err := e.store.GetSessionByProviderID(ctx, asset.ProviderSessionID)
	if err != nil {
		return models.Recording{}, false, fmt.Errorf("resolve session %s: %w", asset.ProviderSessionID, err)
	}
	if !ok {
		return models.Recording{}, false, nil
	}
	recording, ok, err := e.store.GetRecordingByStreamID(ctx, session.ID)
	if err != nil {
		return models.Recording{}, false, fmt.Errorf("resolve recording by stream %s: %w", session.ID, err)
	}
	return recording, ok, nil
}
