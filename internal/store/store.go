package store

import (
	"context"
	"errors"
	"time"

	"pulsecast/internal/models"
)

var (
	// ErrVersionConflict indicates a conditional update observed a version
	// other than the one the caller expected. The caller re-reads and
	// re-evaluates; it never overwrites blindly.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateProviderSession indicates a session with the same provider
	// identifier already exists.
	ErrDuplicateProviderSession = errors.New("provider session id already registered")
)

// SessionUpdate carries the mutable Session fields for a conditional update.
// Nil fields are left untouched.
type SessionUpdate struct {
	Status      *models.SessionStatus
	ViewerCount *int
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// RecordingUpdate carries the mutable Recording fields for a conditional
// update. Nil fields are left untouched.
type RecordingUpdate struct {
	Status          *models.RecordingStatus
	ProviderAssetID *string
	PlaybackURL     *string
	DurationSeconds *int
	FileSizeBytes   *int64
	IsDeleted       *bool
	IsHidden        *bool
}

// ContentUpdate carries moderation and boost mutations. BoostLevel 0 clears
// the boost; any level >= 1 marks the item boosted and stamps BoostedAt.
type ContentUpdate struct {
	Status     *models.ContentStatus
	BoostLevel *int
	Visibility *string
}

// Store is the document-store boundary shared by the lifecycle engine, the
// feed engine, and the API handlers. Every write to an existing record is a
// compare-and-swap on the record's version counter; creation of recordings is
// a true create-if-absent keyed by stream ID so duplicate webhook deliveries
// cannot materialize duplicates.
type Store interface {
	Ping(ctx context.Context) error

	CreateSession(ctx context.Context, session models.Session) (models.Session, error)
	GetSession(ctx context.Context, id string) (models.Session, bool, error)
	GetSessionByProviderID(ctx context.Context, providerSessionID string) (models.Session, bool, error)
	ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error)
	UpdateSession(ctx context.Context, id string, expectVersion int64, update SessionUpdate) (models.Session, error)

	CreateRecordingIfAbsent(ctx context.Context, recording models.Recording) (models.Recording, bool, error)
	GetRecording(ctx context.Context, id string) (models.Recording, bool, error)
	GetRecordingByStreamID(ctx context.Context, streamID string) (models.Recording, bool, error)
	GetRecordingByAssetID(ctx context.Context, providerAssetID string) (models.Recording, bool, error)
	ListRecordings(ctx context.Context, creatorID string) ([]models.Recording, error)
	UpdateRecording(ctx context.Context, id string, expectVersion int64, update RecordingUpdate) (models.Recording, error)

	CreateContent(ctx context.Context, content models.Content) (models.Content, error)
	GetContent(ctx context.Context, id string) (models.Content, bool, error)
	UpdateContent(ctx context.Context, id string, expectVersion int64, update ContentUpdate) (models.Content, error)
	ListPublishedContent(ctx context.Context, visibilities []string) ([]models.Content, error)
}
