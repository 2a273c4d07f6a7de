// Package csrf implements the double-submit-cookie defense: a random token
// set in the ez_csrf cookie must be echoed back in the x-csrf-token header
// on state-changing requests. Forgery fails because a third-party origin
// cannot read the cookie to echo it.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	// CookieName is readable by client script on purpose: the frontend
	// mirrors it into the request header.
	CookieName = "ez_csrf"
	HeaderName = "x-csrf-token"

	// TokenTTL bounds the cookie lifetime.
	TokenTTL = 8 * time.Hour
)

// ErrMismatch is returned when the token pair is absent or unequal.
var ErrMismatch = errors.New("csrf: token missing or mismatch")

// Guard validates state-changing requests and knows which paths are exempt
// (payment-provider webhooks cannot carry browser cookies).
type Guard struct {
	bypass []string
}

// NewGuard builds a guard with the given bypass path prefixes.
func NewGuard(bypass ...string) *Guard {
	return &Guard{bypass: bypass}
}

// Mutating reports whether the method changes state.
func Mutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Exempt reports whether the request skips validation entirely: safe
// methods, bypass-listed paths, and bearer-token flows (no cookie jar, no
// CSRF exposure).
func (g *Guard) Exempt(method, path string, hasBearer bool) bool {
	if !Mutating(method) {
		return true
	}
	if hasBearer {
		return true
	}
	return g.Bypassed(path)
}

// Bypassed reports whether the path is on the bypass list. Bypassed
// endpoints authenticate out of band (webhook signatures), not by session.
func (g *Guard) Bypassed(path string) bool {
	for _, p := range g.bypass {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Validate succeeds only when both tokens are present and byte-equal. The
// comparison is constant-time.
func (g *Guard) Validate(cookieToken, headerToken string) error {
	cookieToken = strings.TrimSpace(cookieToken)
	headerToken = strings.TrimSpace(headerToken)
	if cookieToken == "" || headerToken == "" {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrMismatch
	}
	return nil
}

// NewToken returns a fresh random token. Fails closed if the entropy source
// is unavailable.
func NewToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// Cookie builds the double-submit cookie for the token.
func Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TokenTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		HttpOnly: false,
	}
}
