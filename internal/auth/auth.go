// Package auth issues and verifies bearer tokens for non-browser clients
// (the mobile app retries mutations over token auth, not cookies) and
// defines the credential-verification contract used at login. Password
// storage itself is a collaborator behind the CredentialVerifier interface.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ezduka.app/internal/session"
)

const (
	issuer            = "ezduka"
	secretEnvVariable = "EZDUKA_AUTH_SECRET"
)

var (
	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the session record inside a signed bearer token.
type Claims struct {
	TenantID     string `json:"tenant_id,omitempty"`
	Role         string `json:"role,omitempty"`
	TenantStatus string `json:"tenant_status,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a bearer token equivalent to the given session using
// HS256. The subject is the user id.
func GenerateToken(s session.Session, ttl time.Duration) (string, error) {
	if strings.TrimSpace(s.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		TenantID:     s.TenantID,
		Role:         string(s.Role),
		TenantStatus: string(s.TenantStatus),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies signature and claims and reconstructs the
// session record. Unknown role or status values degrade the same way the
// cookie codec does.
func ParseAndValidate(token string) (session.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return session.Session{}, ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return session.Session{}, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		return session.Session{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return session.Session{}, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return session.Session{}, ErrInvalidToken
	}

	s := session.Session{
		UserID:   claims.Subject,
		TenantID: strings.TrimSpace(claims.TenantID),
	}
	if role, ok := session.ParseRole(claims.Role); ok {
		s.Role = role
	} else {
		s.Role = session.RoleAttendant
	}
	s.TenantStatus = session.ParseTenantStatus(claims.TenantStatus)
	return s, nil
}

func validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.err = nil
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
