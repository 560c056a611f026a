package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"pulsecast/internal/lifecycle"
	"pulsecast/internal/observability/metrics"
	"pulsecast/internal/webhook"
)

const webhookBodyLimit = 1 << 20

// VideoWebhook ingests lifecycle notifications from the video provider.
// Deliveries are acknowledged with 200 whenever they were received and
// inspected, even when the payload is malformed or references no known
// record, so the provider does not retry events that will never apply.
func (h *Handler) VideoWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if h.webhookSecretHash != "" {
		token := webhookToken(r)
		if err := VerifySecret(h.webhookSecretHash, token); err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("invalid webhook token"))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		metrics.ObserveWebhook("unknown", "error")
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "error": "read body"})
		return
	}
	defer r.Body.Close()

	event := webhook.Parse(body)
	outcome := h.applyWebhookEvent(r, event)
	metrics.ObserveWebhook(event.Kind(), outcome)

	payload := map[string]interface{}{"received": true}
	if outcome == "error" {
		payload["error"] = "processing failed"
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) applyWebhookEvent(r *http.Request, event webhook.Event) string {
	ctx := r.Context()
	switch ev := event.(type) {
	case webhook.SessionStarted:
		outcome, err := h.Lifecycle.SessionStarted(ctx, ev.ProviderSessionID)
		if err != nil {
			h.Logger.Error("webhook session-started failed", "provider_session_id", ev.ProviderSessionID, "error", err)
			return "error"
		}
		return string(outcome)
	case webhook.SessionIdle:
		outcome, err := h.Lifecycle.SessionIdle(ctx, ev.ProviderSessionID)
		if err != nil {
			h.Logger.Error("webhook session-idle failed", "provider_session_id", ev.ProviderSessionID, "error", err)
			return "error"
		}
		return string(outcome)
	case webhook.AssetReady:
		details := lifecycle.AssetDetails{
			ProviderAssetID:   ev.ProviderAssetID,
			ProviderSessionID: ev.ProviderSessionID,
			PlaybackURL:       ev.PlaybackURL,
			DurationSeconds:   ev.DurationSeconds,
			FileSizeBytes:     ev.FileSizeBytes,
		}
		outcome, err := h.Lifecycle.AssetReady(ctx, details)
		if err != nil {
			h.Logger.Error("webhook asset-ready failed", "provider_asset_id", ev.ProviderAssetID, "error", err)
			return "error"
		}
		return string(outcome)
	default:
		h.Logger.Debug("ignoring unrecognized webhook event", "type", eventType(event))
		return "unknown"
	}
}

func eventType(event webhook.Event) string {
	if unknown, ok := event.(webhook.Unknown); ok && unknown.Type != "" {
		return unknown.Type
	}
	return event.Kind()
}

func webhookToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Webhook-Token")); token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
