// Package auth mints and verifies the HMAC session credentials the
// engine consumes. Token issuance flows (login, refresh) live outside
// the core; this package only defines the credential format and the
// payload MAC stored alongside every raw event for audit.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
)

// Claims is what a verified credential says about its bearer.
type Claims struct {
	Subject   string           `json:"sub"`
	MatchID   string           `json:"matchId,omitempty"`
	Role      domain.Role      `json:"role"`
	Side      domain.ScorerSide `json:"side,omitempty"`
	ExpiresAt time.Time        `json:"exp"`
}

// Signer signs and verifies session credentials with HMAC-SHA256 over a
// process-wide secret. Tokens are base64url(claimsJSON) "." hexmac.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer. An empty secret is a configuration error:
// every credential and event signature in the system derives from it.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: signing secret is empty")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Mint issues a credential for the given claims.
func (s *Signer) Mint(c Claims) (string, error) {
	if c.Subject == "" {
		return "", fmt.Errorf("auth: claims need a subject")
	}
	if !domain.ValidRole(c.Role) {
		return "", fmt.Errorf("auth: unknown role %q", c.Role)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("auth: encode claims: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + s.mac(body), nil
}

// Verify checks a credential's MAC and expiry and returns its claims.
func (s *Signer) Verify(token string, now time.Time) (Claims, error) {
	body, mac, ok := strings.Cut(token, ".")
	if !ok || body == "" || mac == "" {
		return Claims{}, domain.E(domain.ErrUnauthenticated, "malformed credential")
	}
	if !hmac.Equal([]byte(s.mac(body)), []byte(mac)) {
		return Claims{}, domain.E(domain.ErrUnauthenticated, "credential signature mismatch")
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Claims{}, domain.E(domain.ErrUnauthenticated, "malformed credential body")
	}
	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return Claims{}, domain.E(domain.ErrUnauthenticated, "malformed claims")
	}
	if !now.Before(c.ExpiresAt) {
		return Claims{}, domain.E(domain.ErrUnauthenticated, "credential expired")
	}
	return c, nil
}

// SignPayload computes the audit MAC stored verbatim with each raw
// event: a MAC over the canonical payload bytes bound to the scorer's
// subject. The log stores it; only ingress ever verifies it.
func (s *Signer) SignPayload(subject string, canonicalPayload []byte) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(subject))
	h.Write(canonicalPayload)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Signer) mac(body string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
