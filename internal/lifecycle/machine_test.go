package lifecycle

import (
	"testing"
	"time"

	"pulsecast/internal/models"
)

func TestStartSessionTransitions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		status      models.SessionStatus
		wantChanged bool
		wantStatus  models.SessionStatus
	}{
		{name: "configuring goes live", status: models.SessionConfiguring, wantChanged: true, wantStatus: models.SessionLive},
		{name: "live absorbs duplicate", status: models.SessionLive, wantChanged: false, wantStatus: models.SessionLive},
		{name: "ended never reopens", status: models.SessionEnded, wantChanged: false, wantStatus: models.SessionEnded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := models.Session{ID: "s1", Status: tc.status}
			next, changed := StartSession(session, now)
			if changed != tc.wantChanged {
				t.Fatalf("changed = %v, want %v", changed, tc.wantChanged)
			}
			if next.Status != tc.wantStatus {
				t.Fatalf("status = %q, want %q", next.Status, tc.wantStatus)
			}
			if tc.wantChanged && !next.StartedAt.Equal(now) {
				t.Fatalf("StartedAt = %v, want %v", next.StartedAt, now)
			}
		})
	}
}

func TestStartSessionKeepsEarlierStartedAt(t *testing.T) {
	earlier := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	session := models.Session{ID: "s1", Status: models.SessionConfiguring, StartedAt: earlier}

	next, changed := StartSession(session, earlier.Add(time.Hour))
	if !changed {
		t.Fatalf("expected transition")
	}
	if !next.StartedAt.Equal(earlier) {
		t.Fatalf("StartedAt overwritten: %v", next.StartedAt)
	}
}

func TestEndSessionTransitions(t *testing.T) {
	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		status      models.SessionStatus
		wantChanged bool
	}{
		{name: "live ends", status: models.SessionLive, wantChanged: true},
		{name: "configuring is untouched", status: models.SessionConfiguring, wantChanged: false},
		{name: "ended absorbs duplicate", status: models.SessionEnded, wantChanged: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := models.Session{ID: "s1", Status: tc.status}
			next, changed := EndSession(session, now)
			if changed != tc.wantChanged {
				t.Fatalf("changed = %v, want %v", changed, tc.wantChanged)
			}
			if tc.wantChanged {
				if next.Status != models.SessionEnded {
					t.Fatalf("status = %q", next.Status)
				}
				if next.EndedAt == nil || !next.EndedAt.Equal(now) {
					t.Fatalf("EndedAt = %v, want %v", next.EndedAt, now)
				}
			}
		})
	}
}

func TestCompleteRecording(t *testing.T) {
	policy := Policy{MinDurationSeconds: 10, MaxDurationSeconds: 3600}

	cases := []struct {
		name         string
		recording    models.Recording
		asset        AssetDetails
		wantChanged  bool
		wantStatus   models.RecordingStatus
		wantDuration int
		wantPlayback string
	}{
		{
			name:         "pending becomes ready",
			recording:    models.Recording{ID: "r1", Status: models.RecordingPending},
			asset:        AssetDetails{ProviderAssetID: "a1", PlaybackURL: "https://cdn.example/r1.m3u8", DurationSeconds: 120},
			wantChanged:  true,
			wantStatus:   models.RecordingReady,
			wantDuration: 120,
			wantPlayback: "https://cdn.example/r1.m3u8",
		},
		{
			name:         "processing becomes ready",
			recording:    models.Recording{ID: "r1", Status: models.RecordingProcessing},
			asset:        AssetDetails{ProviderAssetID: "a1", PlaybackURL: "https://cdn.example/r1.m3u8", DurationSeconds: 45},
			wantChanged:  true,
			wantStatus:   models.RecordingReady,
			wantDuration: 45,
			wantPlayback: "https://cdn.example/r1.m3u8",
		},
		{
			name:         "under minimum fails",
			recording:    models.Recording{ID: "r1", Status: models.RecordingPending},
			asset:        AssetDetails{ProviderAssetID: "a1", PlaybackURL: "https://cdn.example/r1.m3u8", DurationSeconds: 4},
			wantChanged:  true,
			wantStatus:   models.RecordingFailed,
			wantDuration: 4,
		},
		{
			name:         "over maximum truncates",
			recording:    models.Recording{ID: "r1", Status: models.RecordingPending},
			asset:        AssetDetails{ProviderAssetID: "a1", PlaybackURL: "https://cdn.example/r1.m3u8", DurationSeconds: 7200},
			wantChanged:  true,
			wantStatus:   models.RecordingReady,
			wantDuration: 3600,
			wantPlayback: "https://cdn.example/r1.m3u8",
		},
		{
			name:        "ready absorbs duplicate",
			recording:   models.Recording{ID: "r1", Status: models.RecordingReady, DurationSeconds: 120},
			asset:       AssetDetails{ProviderAssetID: "a2", DurationSeconds: 999},
			wantChanged: false,
			wantStatus:  models.RecordingReady,
		},
		{
			name:        "failed absorbs duplicate",
			recording:   models.Recording{ID: "r1", Status: models.RecordingFailed},
			asset:       AssetDetails{ProviderAssetID: "a2", DurationSeconds: 999},
			wantChanged: false,
			wantStatus:  models.RecordingFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, changed := CompleteRecording(tc.recording, tc.asset, policy)
			if changed != tc.wantChanged {
				t.Fatalf("changed = %v, want %v", changed, tc.wantChanged)
			}
			if next.Status != tc.wantStatus {
				t.Fatalf("status = %q, want %q", next.Status, tc.wantStatus)
			}
			if !tc.wantChanged {
				return
			}
			if next.DurationSeconds != tc.wantDuration {
				t.Fatalf("duration = %d, want %d", next.DurationSeconds, tc.wantDuration)
			}
			if next.PlaybackURL != tc.wantPlayback {
				t.Fatalf("playback url = %q, want %q", next.PlaybackURL, tc.wantPlayback)
			}
		})
	}
}
