package main

import (
	"context"
	"log/slog"
	"time"

	"pulsecast/internal/models"
	"pulsecast/internal/observability/metrics"
	"pulsecast/internal/provider"
	"pulsecast/internal/store"
	"pulsecast/internal/viewers"
)

// statusPoller refreshes viewer counts for live sessions from the provider's
// status endpoint. Counts land in the tracker only; the session record itself
// changes solely through lifecycle events.
type statusPoller struct {
	store    store.Store
	provider provider.Client
	viewers  viewers.Tracker
	logger   *slog.Logger
	interval time.Duration
}

func (p statusPoller) Run(ctx context.Context) {
	if p.provider == nil || p.viewers == nil {
		return
	}
	interval := p.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p statusPoller) poll(ctx context.Context) {
	sessions, err := p.store.ListSessionsByStatus(ctx, models.SessionLive)
	if err != nil {
		p.logger.Warn("list live sessions failed", "error", err)
		return
	}
	for _, session := range sessions {
		status, err := p.provider.GetSessionStatus(ctx, session.ProviderSessionID)
		if err != nil {
			metrics.ProviderFailure("session_status")
			p.logger.Warn("provider status poll failed",
				"session_id", session.ID,
				"provider_session_id", session.ProviderSessionID,
				"error", err)
			continue
		}
		if err := p.viewers.Set(ctx, session.ID, status.ViewerCount); err != nil {
			p.logger.Warn("viewer tracker update failed", "session_id", session.ID, "error", err)
		}
	}
}
