package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pulsecast/internal/models"
	"pulsecast/internal/provider"
)

type denyAll struct{}

func (denyAll) CanCreateSession(context.Context, string, string) error {
	return errors.New("not allowed")
}

func createTestSession(t *testing.T, env *testEnv) createSessionResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"creatorId":"c1"}`))
	rec := httptest.NewRecorder()
	env.handler.Sessions(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp createSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	resp := createTestSession(t, env)

	if resp.Status != string(models.SessionConfiguring) {
		t.Fatalf("status = %q, want configuring", resp.Status)
	}
	if resp.ProviderSessionID == "" {
		t.Fatalf("provider session id missing")
	}
	if resp.IngestCredentials == "" {
		t.Fatalf("ingest credentials missing from create response")
	}
	if resp.Visibility != models.VisibilityPublic {
		t.Fatalf("visibility = %q, want public", resp.Visibility)
	}

	stored, ok, err := env.store.GetSession(context.Background(), resp.ID)
	if err != nil || !ok {
		t.Fatalf("stored session missing: %v", err)
	}
	if stored.IngestKeyHash == "" {
		t.Fatalf("ingest key hash not persisted")
	}
	if err := VerifySecret(stored.IngestKeyHash, resp.IngestCredentials); err != nil {
		t.Fatalf("persisted hash does not match returned credentials: %v", err)
	}
	if strings.Contains(stored.IngestKeyHash, resp.IngestCredentials) {
		t.Fatalf("plaintext credentials persisted")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing creator", `{}`, http.StatusBadRequest},
		{"blank creator", `{"creatorId":"  "}`, http.StatusBadRequest},
		{"unknown field", `{"creatorId":"c1","surprise":true}`, http.StatusBadRequest},
		{"malformed json", `{"creatorId":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			env.handler.Sessions(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCreateSessionProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.CreateErr = errors.New("provider down")

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"creatorId":"c1"}`))
	rec := httptest.NewRecorder()
	env.handler.Sessions(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestCreateSessionDuplicateProviderID(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Created = []provider.CreatedSession{
		{ProviderSessionID: "prov-same", IngestCredentials: "k1"},
		{ProviderSessionID: "prov-same", IngestCredentials: "k2"},
	}

	createTestSession(t, env)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"creatorId":"c1"}`))
	rec := httptest.NewRecorder()
	env.handler.Sessions(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateSessionAuthorization(t *testing.T) {
	env := newTestEnv(t, withAuthorizer(denyAll{}))
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"creatorId":"c1"}`))
	rec := httptest.NewRecorder()
	env.handler.Sessions(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGetSessionOverlaysViewerCount(t *testing.T) {
	env := newTestEnv(t)
	created := createTestSession(t, env)
	ctx := context.Background()

	if _, err := env.engine.SessionStarted(ctx, created.ProviderSessionID); err != nil {
		t.Fatalf("go live: %v", err)
	}
	if err := env.viewers.Set(ctx, created.ID, 57); err != nil {
		t.Fatalf("set viewers: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil)
	rec := httptest.NewRecorder()
	env.handler.SessionByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(models.SessionLive) {
		t.Fatalf("status = %q, want live", resp.Status)
	}
	if resp.ViewerCount != 57 {
		t.Fatalf("viewer count = %d, want 57", resp.ViewerCount)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	rec := httptest.NewRecorder()
	env.handler.SessionByID(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStopSession(t *testing.T) {
	env := newTestEnv(t)
	created := createTestSession(t, env)
	ctx := context.Background()

	if _, err := env.engine.SessionStarted(ctx, created.ProviderSessionID); err != nil {
		t.Fatalf("go live: %v", err)
	}
	if err := env.viewers.Set(ctx, created.ID, 12); err != nil {
		t.Fatalf("set viewers: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+created.ID+"/stop", nil)
	rec := httptest.NewRecorder()
	env.handler.SessionByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(models.SessionEnded) {
		t.Fatalf("status = %q, want ended", resp.Status)
	}

	deletes := env.provider.Deletes()
	if len(deletes) != 1 || deletes[0] != created.ProviderSessionID {
		t.Fatalf("provider deletes = %v", deletes)
	}
	if _, ok, _ := env.viewers.Get(ctx, created.ID); ok {
		t.Fatalf("viewer count survived stop")
	}
	if _, ok, _ := env.store.GetRecordingByStreamID(ctx, created.ID); !ok {
		t.Fatalf("recording not materialized on stop")
	}
}

func TestStopSessionToleratesProviderNotFound(t *testing.T) {
	env := newTestEnv(t)
	created := createTestSession(t, env)
	env.provider.DeleteErr = provider.ErrNotFound

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+created.ID+"/stop", nil)
	rec := httptest.NewRecorder()
	env.handler.SessionByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStopSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/missing/stop", nil)
	rec := httptest.NewRecorder()
	env.handler.SessionByID(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionRoutingRejectsUnknownPaths(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodDelete, "/api/sessions/abc", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/sessions/abc/stop", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/sessions/abc/other", http.StatusNotFound},
		{http.MethodGet, "/api/sessions/", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		env.handler.SessionByID(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}
