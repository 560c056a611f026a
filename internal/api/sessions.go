package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pulsecast/internal/models"
	"pulsecast/internal/observability/logging"
	"pulsecast/internal/observability/metrics"
	"pulsecast/internal/provider"
	"pulsecast/internal/store"
)

type createSessionRequest struct {
	CreatorID  string `json:"creatorId"`
	Visibility string `json:"visibility,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

type sessionResponse struct {
	ID                string     `json:"id"`
	ProviderSessionID string     `json:"providerSessionId"`
	CreatorID         string     `json:"creatorId"`
	Visibility        string     `json:"visibility"`
	Mode              string     `json:"mode,omitempty"`
	Status            string     `json:"status"`
	ViewerCount       int        `json:"viewerCount"`
	PlaybackURL       string     `json:"playbackUrl,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type createSessionResponse struct {
	sessionResponse
	IngestCredentials string `json:"ingestCredentials"`
}

func sessionPayload(session models.Session) sessionResponse {
	resp := sessionResponse{
		ID:                session.ID,
		ProviderSessionID: session.ProviderSessionID,
		CreatorID:         session.CreatorID,
		Visibility:        session.Visibility,
		Mode:              session.Mode,
		Status:            string(session.Status),
		ViewerCount:       session.ViewerCount,
		PlaybackURL:       session.PlaybackURL,
		EndedAt:           session.EndedAt,
		CreatedAt:         session.CreatedAt,
	}
	if !session.StartedAt.IsZero() {
		started := session.StartedAt
		resp.StartedAt = &started
	}
	return resp
}

// Sessions handles the session collection endpoint.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	creatorID := strings.TrimSpace(req.CreatorID)
	if creatorID == "" {
		writeError(w, http.StatusBadRequest, errors.New("creatorId is required"))
		return
	}
	visibility := strings.TrimSpace(req.Visibility)
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	callerID := strings.TrimSpace(r.Header.Get(callerIDHeader))
	if callerID == "" {
		callerID = creatorID
	}
	if err := h.Authorizer.CanCreateSession(r.Context(), callerID, creatorID); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}

	created, err := h.Provider.CreateSession(r.Context(), provider.SessionConfig{
		CreatorID:  creatorID,
		Visibility: visibility,
		Mode:       strings.TrimSpace(req.Mode),
	})
	if err != nil {
		metrics.ProviderFailure("create_session")
		h.Logger.Error("provider session create failed", "creator_id", creatorID, "error", err)
		writeError(w, http.StatusBadGateway, errors.New("video provider unavailable"))
		return
	}

	ingestHash, err := HashSecret(created.IngestCredentials)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	session := models.Session{
		ID:                store.NewID(),
		ProviderSessionID: created.ProviderSessionID,
		CreatorID:         creatorID,
		Visibility:        visibility,
		Mode:              strings.TrimSpace(req.Mode),
		Status:            models.SessionConfiguring,
		PlaybackURL:       created.PlaybackURL,
		IngestKeyHash:     ingestHash,
	}
	stored, err := h.Store.CreateSession(r.Context(), session)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateProviderSession) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	metrics.SessionCreated()
	logger := logging.WithContext(logging.ContextWithSessionID(r.Context(), stored.ID), h.Logger)
	logger.Info("session created", "creator_id", creatorID, "provider_session_id", stored.ProviderSessionID)

	writeJSON(w, http.StatusCreated, createSessionResponse{
		sessionResponse:   sessionPayload(stored),
		IngestCredentials: created.IngestCredentials,
	})
}

// SessionByID routes /api/sessions/{id} and /api/sessions/{id}/stop.
func (h *Handler) SessionByID(w http.ResponseWriter, r *http.Request) {
	remainder := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if remainder == "" {
		writeError(w, http.StatusNotFound, errors.New("session id is required"))
		return
	}
	segments := strings.Split(remainder, "/")
	id := segments[0]
	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.getSession(w, r, id)
	case len(segments) == 2 && segments[1] == "stop" && r.Method == http.MethodPost:
		h.stopSession(w, r, id)
	case len(segments) == 1 || (len(segments) == 2 && segments[1] == "stop"):
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request, id string) {
	session, ok, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}

	resp := sessionPayload(session)
	if session.Status == models.SessionLive && h.Viewers != nil {
		if count, ok, err := h.Viewers.Get(r.Context(), session.ID); err == nil && ok {
			resp.ViewerCount = count
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request, id string) {
	session, err := h.Lifecycle.EndSessionByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if h.Provider != nil && session.ProviderSessionID != "" {
		if err := h.Provider.DeleteSession(r.Context(), session.ProviderSessionID); err != nil && !errors.Is(err, provider.ErrNotFound) {
			metrics.ProviderFailure("delete_session")
			h.Logger.Warn("provider session delete failed", "session_id", session.ID, "error", err)
		}
	}
	if h.Viewers != nil {
		if err := h.Viewers.Clear(r.Context(), session.ID); err != nil {
			h.Logger.Warn("viewer tracker clear failed", "session_id", session.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, sessionPayload(session))
}
