package metrics

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestObserveRequestAndNormalizePath(t *testing.T) {
	recorder := New()

	type testCase struct {
		name     string
		method   string
		path     string
		status   int
		duration time.Duration
	}

	cases := []testCase{
		{
			name:     "root path",
			method:   "get",
			path:     "/",
			status:   200,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "empty path",
			method:   "GET",
			path:     "",
			status:   200,
			duration: 25 * time.Millisecond,
		},
		{
			name:     "id segment",
			method:   "get",
			path:     "/api/sessions/123",
			status:   200,
			duration: 100 * time.Millisecond,
		},
		{
			name:     "trailing slash and long id",
			method:   "GET",
			path:     "/api/sessions/abc123def/",
			status:   200,
			duration: 50 * time.Millisecond,
		},
	}

	expected := make(map[requestLabel]struct {
		count    uint64
		duration time.Duration
	})

	for _, tc := range cases {
		recorder.ObserveRequest(tc.method, tc.path, tc.status, tc.duration)

		label := requestLabel{
			method: strings.ToUpper(tc.method),
			path:   normalizePath(tc.path),
			status: fmt.Sprintf("%d", tc.status),
		}
		current := expected[label]
		current.count++
		current.duration += tc.duration
		expected[label] = current
	}

	recorder.mu.RLock()
	defer recorder.mu.RUnlock()
	for label, want := range expected {
		if got := recorder.requestCount[label]; got != want.count {
			t.Fatalf("count for %+v = %d, want %d", label, got, want.count)
		}
		if got := recorder.requestDuration[label]; got != want.duration {
			t.Fatalf("duration for %+v = %s, want %s", label, got, want.duration)
		}
	}

	if got := normalizePath("/api/sessions/abc123def"); got != "/api/sessions/:id" {
		t.Fatalf("normalizePath = %q, want /api/sessions/:id", got)
	}
}

func TestSessionGaugeNeverNegative(t *testing.T) {
	recorder := New()

	recorder.SessionEnded()
	if got := recorder.ActiveSessions(); got != 0 {
		t.Fatalf("gauge went negative: %d", got)
	}

	recorder.SessionStarted()
	recorder.SessionStarted()
	recorder.SessionEnded()
	if got := recorder.ActiveSessions(); got != 1 {
		t.Fatalf("gauge = %d, want 1", got)
	}
}

func TestWriteRendersCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/api/feed", 200, 80*time.Millisecond)
	recorder.ObserveWebhook("asset-ready", "applied")
	recorder.SessionStarted()
	recorder.RecordingEvent("materialized")
	recorder.FeedRequest()
	recorder.ConflictDropped()
	recorder.ProviderFailure("create_session")

	var buf bytes.Buffer
	recorder.Write(&buf)
	body := buf.String()

	expectations := []string{
		`pulsecast_http_requests_total{method="GET",path="/api/feed",status="200"} 1`,
		`pulsecast_webhook_events_total{kind="asset-ready",outcome="applied"} 1`,
		`pulsecast_session_events_total{event="start"} 1`,
		`pulsecast_recording_events_total{outcome="materialized"} 1`,
		`pulsecast_provider_failures_total{operation="create_session"} 1`,
		`pulsecast_feed_requests_total 1`,
		`pulsecast_conflict_drops_total 1`,
		`pulsecast_active_sessions 1`,
	}
	for _, want := range expectations {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestHandlerSetsContentType(t *testing.T) {
	recorder := New()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	recorder.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("content type = %q", got)
	}
}

func TestConcurrentObservations(t *testing.T) {
	recorder := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				recorder.ObserveWebhook("session-started", "applied")
				recorder.SessionStarted()
				recorder.SessionEnded()
			}
		}()
	}
	wg.Wait()

	counts := recorder.WebhookCounts()
	if got := counts[WebhookLabel{Kind: "session-started", Outcome: "applied"}]; got != 800 {
		t.Fatalf("webhook count = %d, want 800", got)
	}
	if got := recorder.ActiveSessions(); got != 0 {
		t.Fatalf("gauge = %d, want 0", got)
	}
}
