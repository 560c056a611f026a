package api

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"pulsecast/internal/feed"
	"pulsecast/internal/lifecycle"
	"pulsecast/internal/playback"
	"pulsecast/internal/provider"
	"pulsecast/internal/store"
	"pulsecast/internal/viewers"
)

type testEnv struct {
	handler  *Handler
	store    *store.Memory
	engine   *lifecycle.Engine
	provider *provider.Stub
	viewers  *viewers.MemoryTracker
}

type envOption func(*Config)

func withWebhookSecret(t *testing.T, secret string) envOption {
	t.Helper()
	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("hash webhook secret: %v", err)
	}
	return func(cfg *Config) { cfg.WebhookSecretHash = hash }
}

func withPlaybackSecret(secret string) envOption {
	return func(cfg *Config) { cfg.Playback = playback.NewSigner(secret, time.Minute) }
}

func withAuthorizer(authorizer Authorizer) envOption {
	return func(cfg *Config) { cfg.Authorizer = authorizer }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	engine := lifecycle.NewEngine(st, lifecycle.DefaultPolicy(), logger)
	stub := provider.NewStub()
	tracker := viewers.NewMemoryTracker(time.Minute)

	cfg := Config{
		Store:     st,
		Lifecycle: engine,
		Feed:      feed.NewEngine(st),
		Provider:  stub,
		Viewers:   tracker,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &testEnv{
		handler:  NewHandler(cfg),
		store:    st,
		engine:   engine,
		provider: stub,
		viewers:  tracker,
	}
}
