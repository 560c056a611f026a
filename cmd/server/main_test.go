package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestModeValue(t *testing.T) {
	cases := []struct {
		flagMode string
		envMode  string
		want     string
	}{
		{"", "", "development"},
		{"Production", "", "production"},
		{"", " staging ", "staging"},
		{"development", "production", "development"},
	}
	for _, tc := range cases {
		if got := modeValue(tc.flagMode, tc.envMode); got != tc.want {
			t.Fatalf("modeValue(%q, %q) = %q, want %q", tc.flagMode, tc.envMode, got, tc.want)
		}
	}
}

func TestResolveListenAddr(t *testing.T) {
	if got := resolveListenAddr("", ""); got != ":8080" {
		t.Fatalf("default addr = %q", got)
	}
	if got := resolveListenAddr(":9000", ":7000"); got != ":9000" {
		t.Fatalf("flag addr = %q", got)
	}
	if got := resolveListenAddr("", ":7000"); got != ":7000" {
		t.Fatalf("env addr = %q", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("  ", "", "third"); got != "third" {
		t.Fatalf("firstNonEmpty = %q, want third", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("firstNonEmpty() = %q, want empty", got)
	}
}

func TestResolveDuration(t *testing.T) {
	if got := resolveDuration(5*time.Second, "PULSECAST_TEST_UNSET", time.Minute); got != 5*time.Second {
		t.Fatalf("flag duration = %v", got)
	}
	if got := resolveDuration(0, "PULSECAST_TEST_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("fallback duration = %v", got)
	}
	t.Setenv("PULSECAST_TEST_DURATION", "30s")
	if got := resolveDuration(0, "PULSECAST_TEST_DURATION", time.Minute); got != 30*time.Second {
		t.Fatalf("env duration = %v", got)
	}
}

func TestOpenStoreGuards(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	if _, _, err := openStore(ctx, storeSettings{Mode: "production"}, logger); !errors.Is(err, errProductionMemoryStore) {
		t.Fatalf("production memory store err = %v", err)
	}
	if _, _, err := openStore(ctx, storeSettings{Driver: "postgres"}, logger); !errors.Is(err, errPostgresWithoutDSN) {
		t.Fatalf("postgres without dsn err = %v", err)
	}
	if _, _, err := openStore(ctx, storeSettings{Driver: "cassandra"}, logger); err == nil {
		t.Fatalf("unsupported driver accepted")
	}
	st, closer, err := openStore(ctx, storeSettings{Mode: "development"}, logger)
	if err != nil || st == nil {
		t.Fatalf("development memory store: %v", err)
	}
	if closer != nil {
		t.Fatalf("memory store returned a closer")
	}
}

func TestBuildViewerTrackerGuards(t *testing.T) {
	ctx := context.Background()

	tracker, closer, err := buildViewerTracker(ctx, viewerSettings{})
	if err != nil || tracker == nil {
		t.Fatalf("default memory tracker: %v", err)
	}
	if closer != nil {
		t.Fatalf("memory tracker returned a closer")
	}

	if _, _, err := buildViewerTracker(ctx, viewerSettings{Driver: "redis"}); err == nil {
		t.Fatalf("redis driver without address accepted")
	}
	if _, _, err := buildViewerTracker(ctx, viewerSettings{Driver: "memcached"}); err == nil {
		t.Fatalf("unsupported driver accepted")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := buildViewerTracker(cancelled, viewerSettings{Driver: "redis", RedisAddr: "127.0.0.1:6379"}); err == nil {
		t.Fatalf("unreachable redis accepted")
	}
}

func TestBuildProviderClientGuards(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := buildProviderClient(providerSettings{Mode: "production"}, logger); !errors.Is(err, errProductionWithoutProvider) {
		t.Fatalf("production without provider err = %v", err)
	}
	client, err := buildProviderClient(providerSettings{Mode: "development"}, logger)
	if err != nil || client == nil {
		t.Fatalf("development stub client: %v", err)
	}
}
