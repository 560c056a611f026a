package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// WebhookLabel identifies a processed webhook delivery by event kind and
// processing outcome ("applied", "noop", "unknown", "error").
type WebhookLabel struct {
	Kind    string
	Outcome string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests,
// webhook processing, session lifecycle events, recording materialization,
// and feed reads. Writers coordinate through a RWMutex; the live-session
// gauge uses an atomic so lifecycle paths never contend with scrapes.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	webhookEvents    map[WebhookLabel]uint64
	sessionEvents    map[string]uint64
	recordingEvents  map[string]uint64
	feedRequests     uint64
	conflictDrops    uint64
	activeSessions   atomic.Int64
	providerFailures map[string]uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		webhookEvents:    make(map[WebhookLabel]uint64),
		sessionEvents:    make(map[string]uint64),
		recordingEvents:  make(map[string]uint64),
		providerFailures: make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by the package-level helpers.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates count and cumulative duration by HTTP method,
// normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveWebhook records a processed delivery by event kind and outcome.
func (r *Recorder) ObserveWebhook(kind, outcome string) {
	label := WebhookLabel{Kind: normalizeName(kind), Outcome: normalizeName(outcome)}
	r.mu.Lock()
	r.webhookEvents[label]++
	r.mu.Unlock()
}

// SessionStarted records a configuring->live transition and bumps the active
// session gauge.
func (r *Recorder) SessionStarted() {
	r.incrementSessionEvent("start")
	r.activeSessions.Add(1)
}

// SessionEnded records a live->ended transition and releases the gauge,
// guarding against negative counts when events race.
func (r *Recorder) SessionEnded() {
	r.incrementSessionEvent("end")
	r.decrementGauge(&r.activeSessions)
}

// SessionCreated records a new session provisioned with the provider.
func (r *Recorder) SessionCreated() {
	r.incrementSessionEvent("create")
}

func (r *Recorder) incrementSessionEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.sessionEvents[name]++
	r.mu.Unlock()
}

// RecordingEvent records a recording lifecycle outcome ("materialized",
// "ready", "failed").
func (r *Recorder) RecordingEvent(outcome string) {
	name := normalizeName(outcome)
	r.mu.Lock()
	r.recordingEvents[name]++
	r.mu.Unlock()
}

// FeedRequest records one feed page fetch.
func (r *Recorder) FeedRequest() {
	r.mu.Lock()
	r.feedRequests++
	r.mu.Unlock()
}

// ConflictDropped records a webhook event dropped after exhausting its
// optimistic-concurrency retry.
func (r *Recorder) ConflictDropped() {
	r.mu.Lock()
	r.conflictDrops++
	r.mu.Unlock()
}

// ProviderFailure records a failed provider call keyed by operation name
// ("create_session", "delete_session", "session_status").
func (r *Recorder) ProviderFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.providerFailures[op]++
	r.mu.Unlock()
}

// ActiveSessions exposes the current gauge of live sessions.
func (r *Recorder) ActiveSessions() int64 {
	return r.activeSessions.Load()
}

// WebhookCounts returns a copy of the webhook counters for tests.
func (r *Recorder) WebhookCounts() map[WebhookLabel]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[WebhookLabel]uint64, len(r.webhookEvents))
	for k, v := range r.webhookEvents {
		counts[k] = v
	}
	return counts
}

// Reset clears all counters and gauges. Intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.webhookEvents = make(map[WebhookLabel]uint64)
	r.sessionEvents = make(map[string]uint64)
	r.recordingEvents = make(map[string]uint64)
	r.providerFailures = make(map[string]uint64)
	r.feedRequests = 0
	r.conflictDrops = 0
	r.activeSessions.Store(0)
}

// Handler exposes the Recorder as an http.Handler writing Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format with sorted label sets
// so scrapes and tests see stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	webhookLabels := r.sortedWebhookLabels()
	sessionEvents := sortedKeys(r.sessionEvents)
	recordingEvents := sortedKeys(r.recordingEvents)
	providerOps := sortedKeys(r.providerFailures)

	fmt.Fprintln(w, "# HELP pulsecast_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE pulsecast_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "pulsecast_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP pulsecast_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE pulsecast_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "pulsecast_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP pulsecast_webhook_events_total Webhook deliveries by event kind and outcome")
	fmt.Fprintln(w, "# TYPE pulsecast_webhook_events_total counter")
	for _, label := range webhookLabels {
		fmt.Fprintf(w, "pulsecast_webhook_events_total{kind=%q,outcome=%q} %d\n", label.Kind, label.Outcome, r.webhookEvents[label])
	}

	fmt.Fprintln(w, "# HELP pulsecast_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE pulsecast_session_events_total counter")
	for _, event := range sessionEvents {
		fmt.Fprintf(w, "pulsecast_session_events_total{event=%q} %d\n", event, r.sessionEvents[event])
	}

	fmt.Fprintln(w, "# HELP pulsecast_recording_events_total Recording lifecycle outcomes")
	fmt.Fprintln(w, "# TYPE pulsecast_recording_events_total counter")
	for _, event := range recordingEvents {
		fmt.Fprintf(w, "pulsecast_recording_events_total{outcome=%q} %d\n", event, r.recordingEvents[event])
	}

	fmt.Fprintln(w, "# HELP pulsecast_provider_failures_total Failed provider calls by operation")
	fmt.Fprintln(w, "# TYPE pulsecast_provider_failures_total counter")
	for _, op := range providerOps {
		fmt.Fprintf(w, "pulsecast_provider_failures_total{operation=%q} %d\n", op, r.providerFailures[op])
	}

	fmt.Fprintln(w, "# HELP pulsecast_feed_requests_total Feed page fetches served")
	fmt.Fprintln(w, "# TYPE pulsecast_feed_requests_total counter")
	fmt.Fprintf(w, "pulsecast_feed_requests_total %d\n", r.feedRequests)

	fmt.Fprintln(w, "# HELP pulsecast_conflict_drops_total Webhook events dropped after a conditional-update retry")
	fmt.Fprintln(w, "# TYPE pulsecast_conflict_drops_total counter")
	fmt.Fprintf(w, "pulsecast_conflict_drops_total %d\n", r.conflictDrops)

	fmt.Fprintln(w, "# HELP pulsecast_active_sessions Current number of live sessions")
	fmt.Fprintln(w, "# TYPE pulsecast_active_sessions gauge")
	fmt.Fprintf(w, "pulsecast_active_sessions %d\n", r.activeSessions.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedWebhookLabels() []WebhookLabel {
	labels := make([]WebhookLabel, 0, len(r.webhookEvents))
	for label := range r.webhookEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Outcome < labels[j].Outcome
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount == 0 {
		return len(segment) >= 20
	}
	return len(segment) >= 8 || digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveWebhook records a webhook delivery on the default recorder.
func ObserveWebhook(kind, outcome string) {
	defaultRecorder.ObserveWebhook(kind, outcome)
}

// SessionStarted increments counters on the default recorder.
func SessionStarted() {
	defaultRecorder.SessionStarted()
}

// SessionEnded decrements the active-session gauge on the default recorder.
func SessionEnded() {
	defaultRecorder.SessionEnded()
}

// SessionCreated records a provisioned session on the default recorder.
func SessionCreated() {
	defaultRecorder.SessionCreated()
}

// RecordingEvent records a recording outcome on the default recorder.
func RecordingEvent(outcome string) {
	defaultRecorder.RecordingEvent(outcome)
}

// FeedRequest records a feed fetch on the default recorder.
func FeedRequest() {
	defaultRecorder.FeedRequest()
}

// ConflictDropped records a dropped event on the default recorder.
func ConflictDropped() {
	defaultRecorder.ConflictDropped()
}

// ProviderFailure records a failed provider call on the default recorder.
func ProviderFailure(operation string) {
	defaultRecorder.ProviderFailure(operation)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
