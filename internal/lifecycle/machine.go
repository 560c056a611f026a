// Package lifecycle holds the transition rules for sessions and recordings
// and the engine that applies them through conditional store updates.
//
// Transition functions are pure: they take the current record and return the
// next one plus a changed flag. Re-applying an event to a record that already
// absorbed it reports changed=false, which callers treat as a successful
// no-op. Status never moves backward.
package lifecycle

import (
	"time"

	"pulsecast/internal/models"
)

// Policy bounds recording durations. Durations above Max are truncated;
// durations below Min push the recording to failed instead of ready.
type Policy struct {
	MinDurationSeconds int
	MaxDurationSeconds int
}

// DefaultPolicy mirrors the provider's nominal VOD limits.
func DefaultPolicy() Policy {
	return Policy{
		MinDurationSeconds: 10,
		MaxDurationSeconds: 12 * 60 * 60,
	}
}

// AssetDetails carries the playback metadata delivered with an asset-ready
// event.
type AssetDetails struct {
	ProviderAssetID   string
	ProviderSessionID string
	PlaybackURL       string
	DurationSeconds   int
	FileSizeBytes     int64
}

// StartSession moves a configuring session to live. Applied to a session that
// is already live or ended it changes nothing.
func StartSession(session models.Session, now time.Time) (models.Session, bool) {
	if session.Status != models.SessionConfiguring {
		return session, false
	}
	session.Status = models.SessionLive
	if session.StartedAt.IsZero() {
		session.StartedAt = now.UTC()
	}
	return session, true
}

// EndSession moves a live session to ended and stamps EndedAt. A session
// still configuring never went live, so there is nothing to end; an ended
// session absorbs the event.
func EndSession(session models.Session, now time.Time) (models.Session, bool) {
	if session.Status != models.SessionLive {
		return session, false
	}
	session.Status = models.SessionEnded
	ended := now.UTC()
	session.EndedAt = &ended
	return session, true
}

// CompleteRecording applies an asset-ready event. Pending and processing
// recordings advance to ready, or to failed when the reported duration falls
// under the policy minimum. Durations above the policy maximum are truncated,
// not rejected. Terminal recordings absorb the event.
func CompleteRecording(recording models.Recording, asset AssetDetails, policy Policy) (models.Recording, bool) {
	if recording.Status.Terminal() {
		return recording, false
	}

	duration := asset.DurationSeconds
	if duration < 0 {
		duration = 0
	}
	if policy.MaxDurationSeconds > 0 && duration > policy.MaxDurationSeconds {
		duration = policy.MaxDurationSeconds
	}

	recording.ProviderAssetID = asset.ProviderAssetID
	recording.DurationSeconds = duration
	if asset.FileSizeBytes > 0 {
		recording.FileSizeBytes = asset.FileSizeBytes
	}

	if policy.MinDurationSeconds > 0 && duration < policy.MinDurationSeconds {
		recording.Status = models.RecordingFailed
		return recording, true
	}

	recording.Status = models.RecordingReady
	recording.PlaybackURL = asset.PlaybackURL
	return recording, true
}
