package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateSession(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"prov-1","ingestKey":"rtmp-key","playbackUrl":"https://cdn.example/live.m3u8"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Token: "tok", Logger: discardLogger()})
	created, err := client.CreateSession(context.Background(), SessionConfig{CreatorID: "c1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ProviderSessionID != "prov-1" || created.IngestCredentials != "rtmp-key" {
		t.Fatalf("created = %+v", created)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotPath != "POST /v1/live/sessions" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestCreateSessionRejectsEmptySessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":""}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Logger: discardLogger()})
	if _, err := client.CreateSession(context.Background(), SessionConfig{CreatorID: "c1"}); err == nil {
		t.Fatalf("accepted a session without a provider id")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"isActive":true,"viewerCount":12}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Logger: discardLogger(), MaxAttempts: 3})
	status, err := client.GetSessionStatus(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.IsActive || status.ViewerCount != 12 {
		t.Fatalf("status = %+v", status)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Logger: discardLogger(), MaxAttempts: 2})
	if _, err := client.GetSessionStatus(context.Background(), "prov-1"); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Logger: discardLogger(), MaxAttempts: 3})
	if err := client.DeleteSession(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}
