package api

import (
	"context"
	"log/slog"

	"pulsecast/internal/feed"
	"pulsecast/internal/lifecycle"
	"pulsecast/internal/playback"
	"pulsecast/internal/provider"
	"pulsecast/internal/store"
	"pulsecast/internal/viewers"
)

// Authorizer decides whether a caller may provision a session on behalf of
// the given creator.
type Authorizer interface {
	CanCreateSession(ctx context.Context, callerID, creatorID string) error
}

// AllowAll authorizes every session request. It is the default when no
// Authorizer is configured.
type AllowAll struct{}

func (AllowAll) CanCreateSession(context.Context, string, string) error { return nil }

// Config carries the collaborators a Handler needs.
type Config struct {
	Store             store.Store
	Lifecycle         *lifecycle.Engine
	Feed              *feed.Engine
	Provider          provider.Client
	Viewers           viewers.Tracker
	Playback          *playback.Signer
	Authorizer        Authorizer
	Logger            *slog.Logger
	WebhookSecretHash string
}

// Handler serves the HTTP API.
type Handler struct {
	Store             store.Store
	Lifecycle         *lifecycle.Engine
	Feed              *feed.Engine
	Provider          provider.Client
	Viewers           viewers.Tracker
	Playback          *playback.Signer
	Authorizer        Authorizer
	Logger            *slog.Logger
	webhookSecretHash string
}

// NewHandler wires a Handler from cfg, applying defaults for optional
// collaborators.
func NewHandler(cfg Config) *Handler {
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = AllowAll{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:             cfg.Store,
		Lifecycle:         cfg.Lifecycle,
		Feed:              cfg.Feed,
		Provider:          cfg.Provider,
		Viewers:           cfg.Viewers,
		Playback:          cfg.Playback,
		Authorizer:        authorizer,
		Logger:            logger,
		webhookSecretHash: cfg.WebhookSecretHash,
	}
}

// callerID reports the identity a request acts as. Gateways in front of the
// API authenticate the caller and forward the identity in this header.
const callerIDHeader = "X-Creator-ID"
