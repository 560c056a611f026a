package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsecast/internal/models"
)

// PostgresConfig describes how the Postgres store initialises its connection
// pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplicationName     string
}

// Postgres is the durable Store driver. Conditional updates compile to
// UPDATE ... WHERE id = $1 AND version = $2; create-if-absent compiles to
// INSERT ... ON CONFLICT (stream_id) DO NOTHING.
type Postgres struct {
	pool *pgxpool.Pool
}

const uniqueViolation = "23505"

// NewPostgres opens a pooled Postgres connection and verifies the schema is
// reachable.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const sessionColumns = `id, provider_session_id, creator_id, visibility, mode, status, viewer_count,
	playback_url, ingest_key_hash, started_at, ended_at, created_at, version`

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.ProviderSessionID,
		&session.CreatorID,
		&session.Visibility,
		&session.Mode,
		&session.Status,
		&session.ViewerCount,
		&session.PlaybackURL,
		&session.IngestKeyHash,
		&session.StartedAt,
		&session.EndedAt,
		&session.CreatedAt,
		&session.Version,
	)
	return session, err
}

func (p *Postgres) CreateSession(ctx context.Context, session models.Session) (models.Session, error) {
	if strings.TrimSpace(session.ID) == "" {
		session.ID = NewID()
	}
	if strings.TrimSpace(session.ProviderSessionID) == "" {
		return models.Session{}, fmt.Errorf("provider session id is required")
	}
	if session.Status == "" {
		session.Status = models.SessionConfiguring
	}
	if !session.Status.Valid() {
		return models.Session{}, fmt.Errorf("invalid session status %q", session.Status)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.Version = 1

	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id, provider_session_id, creator_id, visibility, mode, status,
			viewer_count, playback_url, ingest_key_hash, started_at, ended_at, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		session.ID, session.ProviderSessionID, session.CreatorID, session.Visibility, session.Mode,
		session.Status, session.ViewerCount, session.PlaybackURL, session.IngestKeyHash,
		session.StartedAt, session.EndedAt, session.CreatedAt, session.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Session{}, ErrDuplicateProviderSession
		}
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (models.Session, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("select session: %w", err)
	}
	return session, true, nil
}

func (p *Postgres) GetSessionByProviderID(ctx context.Context, providerSessionID string) (models.Session, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE provider_session_id = $1`, strings.TrimSpace(providerSessionID))
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("select session by provider id: %w", err)
	}
	return session, true, nil
}

func (p *Postgres) ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE status = $1 ORDER BY created_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (p *Postgres) UpdateSession(ctx context.Context, id string, expectVersion int64, update SessionUpdate) (models.Session, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE sessions SET
			status       = COALESCE($3, status),
			viewer_count = GREATEST(COALESCE($4, viewer_count), 0),
			started_at   = COALESCE($5, started_at),
			ended_at     = COALESCE($6, ended_at),
			version      = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+sessionColumns,
		id, expectVersion, update.Status, update.ViewerCount, update.StartedAt, update.EndedAt,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, p.sessionConflictOrMissing(ctx, id)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// sessionConflictOrMissing disambiguates a zero-row conditional update:
// the record either disappeared or a concurrent writer advanced its version.
func (p *Postgres) sessionConflictOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check session existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

const recordingColumns = `id, stream_id, creator_id, status, provider_asset_id, playback_url,
	duration_seconds, file_size_bytes, stream_started_at, stream_ended_at, view_count,
	is_deleted, is_hidden, created_at, version`

func scanRecording(row pgx.Row) (models.Recording, error) {
	var recording models.Recording
	err := row.Scan(
		&recording.ID,
		&recording.StreamID,
		&recording.CreatorID,
		&recording.Status,
		&recording.ProviderAssetID,
		&recording.PlaybackURL,
		&recording.DurationSeconds,
		&recording.FileSizeBytes,
		&recording.StreamStartedAt,
		&recording.StreamEndedAt,
		&recording.ViewCount,
		&recording.IsDeleted,
		&recording.IsHidden,
		&recording.CreatedAt,
		&recording.Version,
	)
	return recording, err
}

func (p *Postgres) CreateRecordingIfAbsent(ctx context.Context, recording models.Recording) (models.Recording, bool, error) {
	if strings.TrimSpace(recording.StreamID) == "" {
		return models.Recording{}, false, fmt.Errorf("stream id is required")
	}
	if strings.TrimSpace(recording.ID) == "" {
		recording.ID = NewID()
	}
	if recording.Status == "" {
		recording.Status = models.RecordingPending
	}
	if recording.CreatedAt.IsZero() {
		recording.CreatedAt = time.Now().UTC()
	}
	recording.Version = 1

	row := p.pool.QueryRow(ctx, `
		INSERT INTO recordings (id, stream_id, creator_id, status, provider_asset_id, playback_url,
			duration_seconds, file_size_bytes, stream_started_at, stream_ended_at, view_count,
			is_deleted, is_hidden, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (stream_id) DO NOTHING
		RETURNING `+recordingColumns,
		recording.ID, recording.StreamID, recording.CreatorID, recording.Status,
		recording.ProviderAssetID, recording.PlaybackURL, recording.DurationSeconds,
		recording.FileSizeBytes, recording.StreamStartedAt, recording.StreamEndedAt,
		recording.ViewCount, recording.IsDeleted, recording.IsHidden, recording.CreatedAt,
		recording.Version,
	)
	created, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another writer created it first; hand back the winner.
		existing, ok, lookupErr := p.GetRecordingByStreamID(ctx, recording.StreamID)
		if lookupErr != nil {
			return models.Recording{}, false, lookupErr
		}
		if !ok {
			return models.Recording{}, false, fmt.Errorf("recording for stream %s vanished during insert", recording.StreamID)
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Recording{}, false, fmt.Errorf("insert recording: %w", err)
	}
	return created, true, nil
}

func (p *Postgres) GetRecording(ctx context.Context, id string) (models.Recording, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id)
	recording, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Recording{}, false, nil
	}
	if err != nil {
		return models.Recording{}, false, fmt.Errorf("select recording: %w", err)
	}
	return recording, true, nil
}

func (p *Postgres) GetRecordingByStreamID(ctx context.Context, streamID string) (models.Recording, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE stream_id = $1`, strings.TrimSpace(streamID))
	recording, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Recording{}, false, nil
	}
	if err != nil {
		return models.Recording{}, false, fmt.Errorf("select recording by stream id: %w", err)
	}
	return recording, true, nil
}

func (p *Postgres) GetRecordingByAssetID(ctx context.Context, providerAssetID string) (models.Recording, bool, error) {
	trimmed := strings.TrimSpace(providerAssetID)
	if trimmed == "" {
		return models.Recording{}, false, nil
	}
	row := p.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE provider_asset_id = $1`, trimmed)
	recording, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Recording{}, false, nil
	}
	if err != nil {
		return models.Recording{}, false, fmt.Errorf("select recording by asset id: %w", err)
	}
	return recording, true, nil
}

func (p *Postgres) ListRecordings(ctx context.Context, creatorID string) ([]models.Recording, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+recordingColumns+` FROM recordings
		WHERE NOT is_deleted AND ($1 = '' OR creator_id = $1)
		ORDER BY created_at DESC, id`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	recordings := make([]models.Recording, 0)
	for rows.Next() {
		recording, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recordings = append(recordings, recording)
	}
	return recordings, rows.Err()
}

func (p *Postgres) UpdateRecording(ctx context.Context, id string, expectVersion int64, update RecordingUpdate) (models.Recording, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE recordings SET
			status            = COALESCE($3, status),
			provider_asset_id = COALESCE($4, provider_asset_id),
			playback_url      = COALESCE($5, playback_url),
			duration_seconds  = GREATEST(COALESCE($6, duration_seconds), 0),
			file_size_bytes   = GREATEST(COALESCE($7, file_size_bytes), 0),
			is_deleted        = COALESCE($8, is_deleted),
			is_hidden         = COALESCE($9, is_hidden),
			version           = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+recordingColumns,
		id, expectVersion, update.Status, update.ProviderAssetID, update.PlaybackURL,
		update.DurationSeconds, update.FileSizeBytes, update.IsDeleted, update.IsHidden,
	)
	recording, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Recording{}, p.recordingConflictOrMissing(ctx, id)
	}
	if err != nil {
		return models.Recording{}, fmt.Errorf("update recording: %w", err)
	}
	return recording, nil
}

func (p *Postgres) recordingConflictOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recordings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check recording existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

const contentColumns = `id, creator_id, status, is_boosted, boost_level, boosted_at, created_at,
	view_count, visibility, version`

func scanContent(row pgx.Row) (models.Content, error) {
	var content models.Content
	err := row.Scan(
		&content.ID,
		&content.CreatorID,
		&content.Status,
		&content.IsBoosted,
		&content.BoostLevel,
		&content.BoostedAt,
		&content.CreatedAt,
		&content.ViewCount,
		&content.Visibility,
		&content.Version,
	)
	return content, err
}

func (p *Postgres) CreateContent(ctx context.Context, content models.Content) (models.Content, error) {
	if strings.TrimSpace(content.ID) == "" {
		content.ID = NewID()
	}
	if content.Status == "" {
		content.Status = models.ContentPending
	}
	if content.Visibility == "" {
		content.Visibility = models.VisibilityPublic
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now().UTC()
	}
	if err := normalizeBoost(&content, func() time.Time { return time.Now().UTC() }); err != nil {
		return models.Content{}, err
	}
	content.Version = 1

	_, err := p.pool.Exec(ctx, `
		INSERT INTO content (id, creator_id, status, is_boosted, boost_level, boosted_at,
			created_at, view_count, visibility, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		content.ID, content.CreatorID, content.Status, content.IsBoosted, content.BoostLevel,
		content.BoostedAt, content.CreatedAt, content.ViewCount, content.Visibility, content.Version,
	)
	if err != nil {
		return models.Content{}, fmt.Errorf("insert content: %w", err)
	}
	return content, nil
}

func (p *Postgres) GetContent(ctx context.Context, id string) (models.Content, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id)
	content, err := scanContent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Content{}, false, nil
	}
	if err != nil {
		return models.Content{}, false, fmt.Errorf("select content: %w", err)
	}
	return content, true, nil
}

func (p *Postgres) UpdateContent(ctx context.Context, id string, expectVersion int64, update ContentUpdate) (models.Content, error) {
	if update.BoostLevel != nil && (*update.BoostLevel < 0 || *update.BoostLevel > models.MaxBoostLevel) {
		return models.Content{}, fmt.Errorf("boost level %d out of range", *update.BoostLevel)
	}
	row := p.pool.QueryRow(ctx, `
		UPDATE content SET
			status      = COALESCE($3, status),
			visibility  = COALESCE($4, visibility),
			boost_level = COALESCE($5, boost_level),
			is_boosted  = CASE WHEN $5 IS NULL THEN is_boosted ELSE $5 > 0 END,
			boosted_at  = CASE
				WHEN $5 IS NULL THEN boosted_at
				WHEN $5 = 0 THEN NULL
				ELSE NOW()
			END,
			version     = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+contentColumns,
		id, expectVersion, update.Status, update.Visibility, update.BoostLevel,
	)
	content, err := scanContent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Content{}, p.contentConflictOrMissing(ctx, id)
	}
	if err != nil {
		return models.Content{}, fmt.Errorf("update content: %w", err)
	}
	return content, nil
}

func (p *Postgres) contentConflictOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check content existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (p *Postgres) ListPublishedContent(ctx context.Context, visibilities []string) ([]models.Content, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+contentColumns+` FROM content
		WHERE status = $1 AND (cardinality($2::text[]) = 0 OR visibility = ANY($2))`,
		models.ContentPublished, visibilities)
	if err != nil {
		return nil, fmt.Errorf("list published content: %w", err)
	}
	defer rows.Close()

	items := make([]models.Content, 0)
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, content)
	}
	return items, rows.Err()
}

var _ Store = (*Postgres)(nil)
