package feed

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pulsecast/internal/models"
)

// ErrInvalidCursor indicates the caller supplied a cursor this service did
// not mint.
var ErrInvalidCursor = errors.New("invalid feed cursor")

// cursor pins a position in the merged order: the segment, the sort-key
// values at that position, and the id tie-break. It round-trips through
// base64(JSON) so callers treat it as opaque.
type cursor struct {
	Boosted    bool   `json:"b"`
	BoostLevel int    `json:"l,omitempty"`
	SortTime   int64  `json:"t"`
	ID         string `json:"id"`
}

func cursorFor(item models.Content) cursor {
	if item.IsBoosted {
		return cursor{
			Boosted:    true,
			BoostLevel: item.BoostLevel,
			SortTime:   boostedAt(item).UnixNano(),
			ID:         item.ID,
		}
	}
	return cursor{
		SortTime: item.CreatedAt.UnixNano(),
		ID:       item.ID,
	}
}

func boostedAt(item models.Content) time.Time {
	if item.BoostedAt != nil {
		return *item.BoostedAt
	}
	return time.Time{}
}

// cursorLess reports whether position a precedes position b in the merged
// order. The boosted segment always precedes the non-boosted one.
func cursorLess(a, b cursor) bool {
	if a.Boosted != b.Boosted {
		return a.Boosted
	}
	if a.Boosted && a.BoostLevel != b.BoostLevel {
		return a.BoostLevel > b.BoostLevel
	}
	if a.SortTime != b.SortTime {
		return a.SortTime > b.SortTime
	}
	return a.ID < b.ID
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(encoded string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}, fmt.Errorf("parse cursor: %w", err)
	}
	if c.ID == "" {
		return cursor{}, fmt.Errorf("cursor missing id")
	}
	return c, nil
}
