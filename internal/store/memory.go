package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pulsecast/internal/models"
)

// Memory is an in-process Store used by tests and single-node deployments.
// All records live behind a single RWMutex; conditional-update semantics are
// enforced the same way the Postgres driver enforces them so callers cannot
// tell the drivers apart.
type Memory struct {
	mu sync.RWMutex

	sessions   map[string]models.Session
	byProvider map[string]string // provider session id -> session id

	recordings map[string]models.Recording
	byStream   map[string]string // stream id -> recording id
	byAsset    map[string]string // provider asset id -> recording id

	content map[string]models.Content

	now func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:   make(map[string]models.Session),
		byProvider: make(map[string]string),
		recordings: make(map[string]models.Recording),
		byStream:   make(map[string]string),
		byAsset:    make(map[string]string),
		content:    make(map[string]models.Content),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now != nil {
		m.now = now
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneSession(session models.Session) models.Session {
	cloned := session
	if session.EndedAt != nil {
		ended := *session.EndedAt
		cloned.EndedAt = &ended
	}
	return cloned
}

func cloneContent(content models.Content) models.Content {
	cloned := content
	if content.BoostedAt != nil {
		boosted := *content.BoostedAt
		cloned.BoostedAt = &boosted
	}
	return cloned
}

func (m *Memory) CreateSession(ctx context.Context, session models.Session) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(session.ID) == "" {
		session.ID = NewID()
	}
	provider := strings.TrimSpace(session.ProviderSessionID)
	if provider == "" {
		return models.Session{}, fmt.Errorf("provider session id is required")
	}
	if _, exists := m.byProvider[provider]; exists {
		return models.Session{}, ErrDuplicateProviderSession
	}
	if _, exists := m.sessions[session.ID]; exists {
		return models.Session{}, fmt.Errorf("session %s already exists", session.ID)
	}
	if session.Status == "" {
		session.Status = models.SessionConfiguring
	}
	if !session.Status.Valid() {
		return models.Session{}, fmt.Errorf("invalid session status %q", session.Status)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = m.now()
	}
	session.Version = 1

	m.sessions[session.ID] = session
	m.byProvider[provider] = session.ID
	return cloneSession(session), nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (models.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return models.Session{}, false, nil
	}
	return cloneSession(session), true, nil
}

func (m *Memory) GetSessionByProviderID(ctx context.Context, providerSessionID string) (models.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byProvider[strings.TrimSpace(providerSessionID)]
	if !ok {
		return models.Session{}, false, nil
	}
	session, ok := m.sessions[id]
	if !ok {
		return models.Session{}, false, nil
	}
	return cloneSession(session), true, nil
}

func (m *Memory) ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]models.Session, 0)
	for _, session := range m.sessions {
		if session.Status != status {
			continue
		}
		sessions = append(sessions, cloneSession(session))
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (m *Memory) UpdateSession(ctx context.Context, id string, expectVersion int64, update SessionUpdate) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	if session.Version != expectVersion {
		return models.Session{}, ErrVersionConflict
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return models.Session{}, fmt.Errorf("invalid session status %q", *update.Status)
		}
		session.Status = *update.Status
	}
	if update.ViewerCount != nil {
		count := *update.ViewerCount
		if count < 0 {
			count = 0
		}
		session.ViewerCount = count
	}
	if update.StartedAt != nil {
		session.StartedAt = update.StartedAt.UTC()
	}
	if update.EndedAt != nil {
		ended := update.EndedAt.UTC()
		session.EndedAt = &ended
	}
	session.Version++

	m.sessions[id] = session
	return cloneSession(session), nil
}

func (m *Memory) CreateRecordingIfAbsent(ctx context.Context, recording models.Recording) (models.Recording, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Recording{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	streamID := strings.TrimSpace(recording.StreamID)
	if streamID == "" {
		return models.Recording{}, false, fmt.Errorf("stream id is required")
	}
	if existingID, exists := m.byStream[streamID]; exists {
		existing := m.recordings[existingID]
		return existing, false, nil
	}

	if strings.TrimSpace(recording.ID) == "" {
		recording.ID = NewID()
	}
	if recording.Status == "" {
		recording.Status = models.RecordingPending
	}
	if !recording.Status.Valid() {
		return models.Recording{}, false, fmt.Errorf("invalid recording status %q", recording.Status)
	}
	if recording.CreatedAt.IsZero() {
		recording.CreatedAt = m.now()
	}
	recording.Version = 1

	m.recordings[recording.ID] = recording
	m.byStream[streamID] = recording.ID
	if asset := strings.TrimSpace(recording.ProviderAssetID); asset != "" {
		m.byAsset[asset] = recording.ID
	}
	return recording, true, nil
}

func (m *Memory) GetRecording(ctx context.Context, id string) (models.Recording, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Recording{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	recording, ok := m.recordings[id]
	if !ok {
		return models.Recording{}, false, nil
	}
	return recording, true, nil
}

func (m *Memory) GetRecordingByStreamID(ctx context.Context, streamID string) (models.Recording, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Recording{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byStream[strings.TrimSpace(streamID)]
	if !ok {
		return models.Recording{}, false, nil
	}
	recording, ok := m.recordings[id]
	if !ok {
		return models.Recording{}, false, nil
	}
	return recording, true, nil
}

func (m *Memory) GetRecordingByAssetID(ctx context.Context, providerAssetID string) (models.Recording, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Recording{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byAsset[strings.TrimSpace(providerAssetID)]
	if !ok {
		return models.Recording{}, false, nil
	}
	recording, ok := m.recordings[id]
	if !ok {
		return models.Recording{}, false, nil
	}
	return recording, true, nil
}

func (m *Memory) ListRecordings(ctx context.Context, creatorID string) ([]models.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	recordings := make([]models.Recording, 0)
	for _, recording := range m.recordings {
		if creatorID != "" && recording.CreatorID != creatorID {
			continue
		}
		if recording.IsDeleted {
			continue
		}
		recordings = append(recordings, recording)
	}
	sort.Slice(recordings, func(i, j int) bool {
		if recordings[i].CreatedAt.Equal(recordings[j].CreatedAt) {
			return recordings[i].ID < recordings[j].ID
		}
		return recordings[i].CreatedAt.After(recordings[j].CreatedAt)
	})
	return recordings, nil
}

func (m *Memory) UpdateRecording(ctx context.Context, id string, expectVersion int64, update RecordingUpdate) (models.Recording, error) {
	if err := ctx.Err(); err != nil {
		return models.Recording{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	recording, ok := m.recordings[id]
	if !ok {
		return models.Recording{}, ErrNotFound
	}
	if recording.Version != expectVersion {
		return models.Recording{}, ErrVersionConflict
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return models.Recording{}, fmt.Errorf("invalid recording status %q", *update.Status)
		}
		recording.Status = *update.Status
	}
	if update.ProviderAssetID != nil {
		trimmed := strings.TrimSpace(*update.ProviderAssetID)
		if previous := strings.TrimSpace(recording.ProviderAssetID); previous != "" && previous != trimmed {
			delete(m.byAsset, previous)
		}
		recording.ProviderAssetID = trimmed
		if trimmed != "" {
			m.byAsset[trimmed] = recording.ID
		}
	}
	if update.PlaybackURL != nil {
		recording.PlaybackURL = strings.TrimSpace(*update.PlaybackURL)
	}
	if update.DurationSeconds != nil {
		duration := *update.DurationSeconds
		if duration < 0 {
			duration = 0
		}
		recording.DurationSeconds = duration
	}
	if update.FileSizeBytes != nil {
		size := *update.FileSizeBytes
		if size < 0 {
			size = 0
		}
		recording.FileSizeBytes = size
	}
	if update.IsDeleted != nil {
		recording.IsDeleted = *update.IsDeleted
	}
	if update.IsHidden != nil {
		recording.IsHidden = *update.IsHidden
	}
	recording.Version++

	m.recordings[id] = recording
	return recording, nil
}

func (m *Memory) CreateContent(ctx context.Context, content models.Content) (models.Content, error) {
	if err := ctx.Err(); err != nil {
		return models.Content{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(content.ID) == "" {
		content.ID = NewID()
	}
	if _, exists := m.content[content.ID]; exists {
		return models.Content{}, fmt.Errorf("content %s already exists", content.ID)
	}
	if content.Status == "" {
		content.Status = models.ContentPending
	}
	if !content.Status.Valid() {
		return models.Content{}, fmt.Errorf("invalid content status %q", content.Status)
	}
	if content.Visibility == "" {
		content.Visibility = models.VisibilityPublic
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = m.now()
	}
	if err := normalizeBoost(&content, m.now); err != nil {
		return models.Content{}, err
	}
	content.Version = 1

	m.content[content.ID] = content
	return cloneContent(content), nil
}

func normalizeBoost(content *models.Content, now func() time.Time) error {
	if content.BoostLevel < 0 || content.BoostLevel > models.MaxBoostLevel {
		return fmt.Errorf("boost level %d out of range", content.BoostLevel)
	}
	if content.BoostLevel == 0 {
		content.IsBoosted = false
		content.BoostedAt = nil
		return nil
	}
	content.IsBoosted = true
	if content.BoostedAt == nil {
		stamped := now()
		content.BoostedAt = &stamped
	}
	return nil
}

func (m *Memory) GetContent(ctx context.Context, id string) (models.Content, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Content{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.content[id]
	if !ok {
		return models.Content{}, false, nil
	}
	return cloneContent(content), true, nil
}

func (m *Memory) UpdateContent(ctx context.Context, id string, expectVersion int64, update ContentUpdate) (models.Content, error) {
	if err := ctx.Err(); err != nil {
		return models.Content{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.content[id]
	if !ok {
		return models.Content{}, ErrNotFound
	}
	if content.Version != expectVersion {
		return models.Content{}, ErrVersionConflict
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return models.Content{}, fmt.Errorf("invalid content status %q", *update.Status)
		}
		content.Status = *update.Status
	}
	if update.Visibility != nil {
		content.Visibility = strings.TrimSpace(*update.Visibility)
	}
	if update.BoostLevel != nil {
		level := *update.BoostLevel
		if level < 0 || level > models.MaxBoostLevel {
			return models.Content{}, fmt.Errorf("boost level %d out of range", level)
		}
		if level == 0 {
			content.IsBoosted = false
			content.BoostLevel = 0
			content.BoostedAt = nil
		} else {
			content.BoostLevel = level
			content.IsBoosted = true
			stamped := m.now()
			content.BoostedAt = &stamped
		}
	}
	content.Version++

	m.content[id] = content
	return cloneContent(content), nil
}

func (m *Memory) ListPublishedContent(ctx context.Context, visibilities []string) ([]models.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := make(map[string]struct{}, len(visibilities))
	for _, visibility := range visibilities {
		allowed[visibility] = struct{}{}
	}

	items := make([]models.Content, 0)
	for _, content := range m.content {
		if content.Status != models.ContentPublished {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[content.Visibility]; !ok {
				continue
			}
		}
		items = append(items, cloneContent(content))
	}
	return items, nil
}

var _ Store = (*Memory)(nil)
