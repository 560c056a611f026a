// Package provider defines the boundary to the external video-hosting
// service that performs ingest, transcoding, and webhook notification.
package provider

import (
	"context"
	"errors"
)

// ErrNotFound indicates the provider no longer knows the session. Callers
// deleting a session treat it as success.
var ErrNotFound = errors.New("provider session not found")

// SessionConfig describes the session to provision with the provider.
type SessionConfig struct {
	CreatorID  string `json:"creatorId"`
	Visibility string `json:"visibility,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

// CreatedSession is the provider's response to a successful session create.
type CreatedSession struct {
	ProviderSessionID string `json:"id"`
	IngestCredentials string `json:"ingestKey"`
	PlaybackURL       string `json:"playbackUrl"`
}

// SessionStatus is the provider's live view of a session.
type SessionStatus struct {
	IsActive    bool `json:"isActive"`
	IsHealthy   bool `json:"isHealthy"`
	ViewerCount int  `json:"viewerCount"`
}

// Client is the provider API surface the core consumes. Implementations must
// honour context cancellation on every call.
type Client interface {
	CreateSession(ctx context.Context, cfg SessionConfig) (CreatedSession, error)
	DeleteSession(ctx context.Context, providerSessionID string) error
	GetSessionStatus(ctx context.Context, providerSessionID string) (SessionStatus, error)
}
