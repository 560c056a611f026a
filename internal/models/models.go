package models

import "time"

// SessionStatus tracks the lifecycle of a live broadcast. Transitions only
// move forward: configuring -> live -> ended. "ended" is absorbing.
type SessionStatus string

const (
	SessionConfiguring SessionStatus = "configuring"
	SessionLive        SessionStatus = "live"
	SessionEnded       SessionStatus = "ended"
)

// Valid reports whether the status is one of the known session states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionConfiguring, SessionLive, SessionEnded:
		return true
	}
	return false
}

// RecordingStatus tracks the derived VOD artifact. Forward edges are
// pending -> processing -> ready|failed; "deleted" is reserved for admin
// soft-delete tooling and never produced by webhook processing.
type RecordingStatus string

const (
	RecordingPending    RecordingStatus = "pending"
	RecordingProcessing RecordingStatus = "processing"
	RecordingReady      RecordingStatus = "ready"
	RecordingFailed     RecordingStatus = "failed"
	RecordingDeleted    RecordingStatus = "deleted"
)

// Valid reports whether the status is one of the known recording states.
func (s RecordingStatus) Valid() bool {
	switch s {
	case RecordingPending, RecordingProcessing, RecordingReady, RecordingFailed, RecordingDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further webhook-driven transition applies.
func (s RecordingStatus) Terminal() bool {
	return s == RecordingReady || s == RecordingFailed || s == RecordingDeleted
}

// ContentStatus tracks moderation state for feed-ranked items.
type ContentStatus string

const (
	ContentPending   ContentStatus = "pending"
	ContentPublished ContentStatus = "published"
	ContentRejected  ContentStatus = "rejected"
	ContentRemoved   ContentStatus = "removed"
)

// Valid reports whether the status is one of the known content states.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentPending, ContentPublished, ContentRejected, ContentRemoved:
		return true
	}
	return false
}

const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

// MaxBoostLevel bounds the promotional tier assignable to content.
const MaxBoostLevel = 5

// Session is a live broadcast. It is keyed internally by ID and externally by
// the provider's session identifier; webhook processing resolves records only
// through the provider key. Version is a monotonic counter used for
// conditional updates.
type Session struct {
	ID                string        `json:"id"`
	ProviderSessionID string        `json:"providerSessionId"`
	CreatorID         string        `json:"creatorId"`
	Visibility        string        `json:"visibility"`
	Mode              string        `json:"mode,omitempty"`
	Status            SessionStatus `json:"status"`
	ViewerCount       int           `json:"viewerCount"`
	PlaybackURL       string        `json:"playbackUrl,omitempty"`
	// IngestKeyHash is the PBKDF2 hash of the provider ingest credentials.
	// The raw key is returned to the creator once at creation and never
	// persisted.
	IngestKeyHash string     `json:"-"`
	StartedAt     time.Time  `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Version       int64      `json:"version"`
}

// Recording is the VOD artifact derived from an ended Session. StreamID is
// the owning Session's internal ID and is unique: at most one Recording ever
// exists per Session.
type Recording struct {
	ID              string          `json:"id"`
	StreamID        string          `json:"streamId"`
	CreatorID       string          `json:"creatorId"`
	Status          RecordingStatus `json:"status"`
	ProviderAssetID string          `json:"providerAssetId,omitempty"`
	PlaybackURL     string          `json:"playbackUrl,omitempty"`
	DurationSeconds int             `json:"durationSeconds"`
	FileSizeBytes   int64           `json:"fileSizeBytes"`
	StreamStartedAt time.Time       `json:"streamStartedAt"`
	StreamEndedAt   time.Time       `json:"streamEndedAt"`
	ViewCount       int             `json:"viewCount"`
	IsDeleted       bool            `json:"isDeleted"`
	IsHidden        bool            `json:"isHidden"`
	CreatedAt       time.Time       `json:"createdAt"`
	Version         int64           `json:"version"`
}

// Content is a feed-ranked item such as an upload. Boost fields obey the
// invariant: IsBoosted implies BoostLevel >= 1 and BoostedAt set; BoostLevel 0
// implies IsBoosted false and BoostedAt nil.
type Content struct {
	ID         string        `json:"id"`
	CreatorID  string        `json:"creatorId"`
	Status     ContentStatus `json:"status"`
	IsBoosted  bool          `json:"isBoosted"`
	BoostLevel int           `json:"boostLevel"`
	BoostedAt  *time.Time    `json:"boostedAt,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ViewCount  int           `json:"viewCount"`
	Visibility string        `json:"visibility"`
	Version    int64         `json:"version"`
}
