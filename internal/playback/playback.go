// Package playback mints short-lived signed tokens that gate access to ready
// recordings.
package playback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the token failed signature or claim validation.
var ErrInvalidToken = errors.New("invalid playback token")

// Signer issues and verifies HMAC-signed playback tokens whose subject is the
// recording ID.
type Signer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// DefaultTTL bounds token lifetime when the caller does not configure one.
const DefaultTTL = 15 * time.Minute

// NewSigner constructs a Signer. An empty secret disables signing; Token
// returns an error in that case so misconfiguration surfaces early.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    ttl,
		issuer: "pulsecast",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a signing secret is configured.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *Signer) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Token mints a playback token for the given recording.
func (s *Signer) Token(recordingID string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("playback signing secret not configured")
	}
	if strings.TrimSpace(recordingID) == "" {
		return "", fmt.Errorf("recording id is required")
	}
	issued := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   recordingID,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign playback token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the recording ID it grants.
func (s *Signer) Verify(token string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("playback signing secret not configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
