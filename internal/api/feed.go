package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pulsecast/internal/feed"
	"pulsecast/internal/models"
	"pulsecast/internal/observability/metrics"
)

type feedItemResponse struct {
	ID         string     `json:"id"`
	CreatorID  string     `json:"creatorId"`
	Visibility string     `json:"visibility"`
	IsBoosted  bool       `json:"isBoosted"`
	BoostLevel int        `json:"boostLevel,omitempty"`
	BoostedAt  *time.Time `json:"boostedAt,omitempty"`
	ViewCount  int        `json:"viewCount"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type feedPageResponse struct {
	Items      []feedItemResponse `json:"items"`
	HasMore    bool               `json:"hasMore"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

func feedItemPayload(item models.Content) feedItemResponse {
	return feedItemResponse{
		ID:         item.ID,
		CreatorID:  item.CreatorID,
		Visibility: item.Visibility,
		IsBoosted:  item.IsBoosted,
		BoostLevel: item.BoostLevel,
		BoostedAt:  item.BoostedAt,
		ViewCount:  item.ViewCount,
		CreatedAt:  item.CreatedAt,
	}
}

// FeedPage serves one page of the ranked discovery feed.
func (h *Handler) FeedPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	query := r.URL.Query()
	req := feed.Request{Cursor: strings.TrimSpace(query.Get("cursor"))}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		req.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("visibility")); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				req.Visibilities = append(req.Visibilities, trimmed)
			}
		}
	}

	page, err := h.Feed.Feed(r.Context(), req)
	if err != nil {
		if errors.Is(err, feed.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.FeedRequest()

	items := make([]feedItemResponse, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, feedItemPayload(item))
	}
	writeJSON(w, http.StatusOK, feedPageResponse{
		Items:      items,
		HasMore:    page.HasMore,
		NextCursor: page.Cursor,
	})
}
