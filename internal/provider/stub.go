package provider

import (
	"context"
	"fmt"
	"sync"
)

// Stub is an in-memory Client for tests. Responses can be queued per method;
// an empty queue yields deterministic defaults.
type Stub struct {
	mu sync.Mutex

	CreateErr error
	DeleteErr error
	StatusErr error

	Created  []CreatedSession
	Statuses map[string]SessionStatus

	creates int
	deletes []string
}

// NewStub constructs an empty Stub.
func NewStub() *Stub {
	return &Stub{Statuses: make(map[string]SessionStatus)}
}

func (s *Stub) CreateSession(ctx context.Context, cfg SessionConfig) (CreatedSession, error) {
	if err := ctx.Err(); err != nil {
		return CreatedSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return CreatedSession{}, s.CreateErr
	}
	s.creates++
	if len(s.Created) > 0 {
		created := s.Created[0]
		s.Created = s.Created[1:]
		return created, nil
	}
	return CreatedSession{
		ProviderSessionID: fmt.Sprintf("provider-session-%d", s.creates),
		IngestCredentials: fmt.Sprintf("ingest-key-%d", s.creates),
		PlaybackURL:       fmt.Sprintf("https://playback.example.com/%d.m3u8", s.creates),
	}, nil
}

func (s *Stub) DeleteSession(ctx context.Context, providerSessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.deletes = append(s.deletes, providerSessionID)
	return nil
}

func (s *Stub) GetSessionStatus(ctx context.Context, providerSessionID string) (SessionStatus, error) {
	if err := ctx.Err(); err != nil {
		return SessionStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusErr != nil {
		return SessionStatus{}, s.StatusErr
	}
	if status, ok := s.Statuses[providerSessionID]; ok {
		return status, nil
	}
	return SessionStatus{IsActive: true, IsHealthy: true}, nil
}

// Deletes returns the provider session IDs deleted so far.
func (s *Stub) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

var _ Client = (*Stub)(nil)
