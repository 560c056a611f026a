package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pulsecast/internal/models"
)

type recordingResponse struct {
	ID              string    `json:"id"`
	StreamID        string    `json:"streamId"`
	CreatorID       string    `json:"creatorId"`
	Status          string    `json:"status"`
	PlaybackURL     string    `json:"playbackUrl,omitempty"`
	PlaybackToken   string    `json:"playbackToken,omitempty"`
	DurationSeconds int       `json:"durationSeconds"`
	FileSizeBytes   int64     `json:"fileSizeBytes,omitempty"`
	StreamStartedAt time.Time `json:"streamStartedAt"`
	StreamEndedAt   time.Time `json:"streamEndedAt"`
	ViewCount       int       `json:"viewCount"`
	IsHidden        bool      `json:"isHidden,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (h *Handler) recordingPayload(recording models.Recording) recordingResponse {
	resp := recordingResponse{
		ID:              recording.ID,
		StreamID:        recording.StreamID,
		CreatorID:       recording.CreatorID,
		Status:          string(recording.Status),
		PlaybackURL:     recording.PlaybackURL,
		DurationSeconds: recording.DurationSeconds,
		FileSizeBytes:   recording.FileSizeBytes,
		StreamStartedAt: recording.StreamStartedAt,
		StreamEndedAt:   recording.StreamEndedAt,
		ViewCount:       recording.ViewCount,
		IsHidden:        recording.IsHidden,
		CreatedAt:       recording.CreatedAt,
	}
	if recording.Status == models.RecordingReady && h.Playback != nil && h.Playback.Enabled() {
		token, err := h.Playback.Token(recording.ID)
		if err != nil {
			h.Logger.Warn("playback token mint failed", "recording_id", recording.ID, "error", err)
		} else {
			resp.PlaybackToken = token
		}
	}
	return resp
}

// Recordings lists recordings, optionally filtered by creator. Deleted
// recordings are never returned; hidden ones only to their creator.
func (h *Handler) Recordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	creatorID := strings.TrimSpace(r.URL.Query().Get("creatorId"))
	callerID := strings.TrimSpace(r.Header.Get(callerIDHeader))

	recordings, err := h.Store.ListRecordings(r.Context(), creatorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	payload := make([]recordingResponse, 0, len(recordings))
	for _, recording := range recordings {
		if recording.IsDeleted || recording.Status == models.RecordingDeleted {
			continue
		}
		if recording.IsHidden && recording.CreatorID != callerID {
			continue
		}
		payload = append(payload, h.recordingPayload(recording))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recordings": payload})
}

// RecordingByID serves a single recording.
func (h *Handler) RecordingByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/recordings/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	recording, ok, err := h.Store.GetRecording(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok || recording.IsDeleted || recording.Status == models.RecordingDeleted {
		writeError(w, http.StatusNotFound, errors.New("recording not found"))
		return
	}
	callerID := strings.TrimSpace(r.Header.Get(callerIDHeader))
	if recording.IsHidden && recording.CreatorID != callerID {
		writeError(w, http.StatusNotFound, errors.New("recording not found"))
		return
	}
	writeJSON(w, http.StatusOK, h.recordingPayload(recording))
}
