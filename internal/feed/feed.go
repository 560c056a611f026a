// Package feed merges boosted and non-boosted published content into one
// deterministic order and serves it through opaque cursors.
//
// The order is: every boosted item before every non-boosted item, boosted
// items by (boostLevel desc, boostedAt desc, id asc), non-boosted items by
// (createdAt desc, id asc). The id term is the tie-break that keeps
// pagination stable. Reads are not snapshot-isolated across pages: an item
// boosted or published between two fetches may appear twice or be skipped.
package feed

import (
	"context"
	"fmt"
	"sort"

	"pulsecast/internal/models"
	"pulsecast/internal/store"
)

const (
	// DefaultLimit applies when the caller does not specify a page size.
	DefaultLimit = 20
	// MaxLimit caps a single page.
	MaxLimit = 100
)

// Request describes one feed page fetch.
type Request struct {
	Limit        int
	Cursor       string
	Visibilities []string
}

// Page is one feed page. Cursor is empty when the page is empty, otherwise it
// resumes after the last returned item.
type Page struct {
	Items   []models.Content
	HasMore bool
	Cursor  string
}

// Engine ranks and paginates content out of the record store.
type Engine struct {
	store store.Store
}

// NewEngine constructs a feed Engine.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Feed returns one page of the merged order starting after the request
// cursor. An unset cursor starts from the top.
func (e *Engine) Feed(ctx context.Context, req Request) (Page, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var after *cursor
	if req.Cursor != "" {
		decoded, err := decodeCursor(req.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		after = &decoded
	}

	visibilities := req.Visibilities
	if len(visibilities) == 0 {
		visibilities = []string{models.VisibilityPublic}
	}
	items, err := e.store.ListPublishedContent(ctx, visibilities)
	if err != nil {
		return Page{}, fmt.Errorf("load feed candidates: %w", err)
	}

	ordered := rank(items)
	start := 0
	if after != nil {
		start = resumeIndex(ordered, *after)
	}

	end := start + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	page := Page{
		Items:   append([]models.Content(nil), ordered[start:end]...),
		HasMore: end < len(ordered),
	}
	if len(page.Items) > 0 {
		page.Cursor = encodeCursor(cursorFor(page.Items[len(page.Items)-1]))
	}
	return page, nil
}

// rank produces the full merged order: boosted segment then non-boosted.
func rank(items []models.Content) []models.Content {
	boosted := make([]models.Content, 0)
	organic := make([]models.Content, 0, len(items))
	for _, item := range items {
		if item.IsBoosted {
			boosted = append(boosted, item)
		} else {
			organic = append(organic, item)
		}
	}

	sort.Slice(boosted, func(i, j int) bool {
		a, b := boosted[i], boosted[j]
		if a.BoostLevel != b.BoostLevel {
			return a.BoostLevel > b.BoostLevel
		}
		at, bt := boostedAt(a), boostedAt(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID < b.ID
	})
	sort.Slice(organic, func(i, j int) bool {
		a, b := organic[i], organic[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return append(boosted, organic...)
}

// resumeIndex returns the index of the first item strictly after the cursor
// position in the merged order. Items equal to the cursor key are skipped, so
// a cursor taken at the segment boundary resumes cleanly in the next segment.
func resumeIndex(ordered []models.Content, after cursor) int {
	return sort.Search(len(ordered), func(i int) bool {
		return cursorLess(after, cursorFor(ordered[i]))
	})
}
