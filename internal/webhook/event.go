// Package webhook parses inbound provider notifications into a closed set of
// event types. Deliveries are at-least-once and may arrive out of order, so
// parsing never fails hard: anything unrecognized or malformed becomes an
// Unknown event that the caller acknowledges and drops.
package webhook

import (
	"encoding/json"
	"math"
	"strings"
)

// Event kinds emitted by the provider that the service acts on.
const (
	KindSessionStarted = "session-started"
	KindSessionIdle    = "session-idle"
	KindAssetReady     = "asset-ready"
)

// Event is the closed union of parsed webhook payloads. The concrete types
// are SessionStarted, SessionIdle, AssetReady, and Unknown.
type Event interface {
	Kind() string
}

// SessionStarted signals the provider accepted the first media for a session.
type SessionStarted struct {
	ProviderSessionID string
}

func (SessionStarted) Kind() string { return KindSessionStarted }

// SessionIdle signals the provider stopped receiving media for a session.
type SessionIdle struct {
	ProviderSessionID string
}

func (SessionIdle) Kind() string { return KindSessionIdle }

// AssetReady signals the provider finished preparing the VOD asset.
type AssetReady struct {
	ProviderAssetID   string
	ProviderSessionID string
	PlaybackURL       string
	DurationSeconds   int
	FileSizeBytes     int64
}

func (AssetReady) Kind() string { return KindAssetReady }

// Unknown covers unrecognized event types and payloads that do not carry the
// identifiers their type requires. Type preserves the raw event name for
// logging; it is empty when the body could not be decoded at all.
type Unknown struct {
	Type string
}

func (Unknown) Kind() string { return "unknown" }

type envelope struct {
	Event  string `json:"event"`
	Stream *struct {
		ID string `json:"id"`
	} `json:"stream"`
	Asset *struct {
		ID              string  `json:"id"`
		StreamID        string  `json:"streamId"`
		PlaybackURL     string  `json:"playbackUrl"`
		DurationSeconds float64 `json:"durationSeconds"`
		FileSizeBytes   int64   `json:"fileSizeBytes"`
	} `json:"asset"`
}

// Parse decodes a raw webhook body. It always returns an Event; malformed
// input maps to Unknown rather than an error so the transport can acknowledge
// the delivery either way.
func Parse(body []byte) Event {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Unknown{}
	}

	kind := strings.ToLower(strings.TrimSpace(env.Event))
	switch kind {
	case KindSessionStarted, KindSessionIdle:
		if env.Stream == nil || strings.TrimSpace(env.Stream.ID) == "" {
			return Unknown{Type: kind}
		}
		id := strings.TrimSpace(env.Stream.ID)
		if kind == KindSessionStarted {
			return SessionStarted{ProviderSessionID: id}
		}
		return SessionIdle{ProviderSessionID: id}
	case KindAssetReady:
		if env.Asset == nil || strings.TrimSpace(env.Asset.ID) == "" {
			return Unknown{Type: kind}
		}
		sessionID := strings.TrimSpace(env.Asset.StreamID)
		if sessionID == "" && env.Stream != nil {
			sessionID = strings.TrimSpace(env.Stream.ID)
		}
		return AssetReady{
			ProviderAssetID:   strings.TrimSpace(env.Asset.ID),
			ProviderSessionID: sessionID,
			PlaybackURL:       strings.TrimSpace(env.Asset.PlaybackURL),
			DurationSeconds:   roundSeconds(env.Asset.DurationSeconds),
			FileSizeBytes:     env.Asset.FileSizeBytes,
		}
	default:
		return Unknown{Type: kind}
	}
}

func roundSeconds(seconds float64) int {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	return int(math.Round(seconds))
}
