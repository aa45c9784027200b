// Package auth exchanges the dashboard password for a short-lived
// signed token.
//
// The password itself is only ever checked by VerifyPassword (in
// constant time); everything after that runs on HS256 tokens with an
// expiry, so the client never holds a long-lived "unlocked" flag. The
// signing key is generated per process — restarting the server
// invalidates outstanding tokens, which is the explicit revoke.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkboard/internal/httputil"
)

// CookieName is the fallback token location for browser clients.
const CookieName = "linkboard_token"

// Manager mints and validates tokens.
type Manager struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	logger   *slog.Logger
}

// New creates a Manager. An empty password disables unlocking entirely:
// VerifyPassword always fails and the dashboard stays read-only.
func New(password string, ttl time.Duration, logger *slog.Logger) (*Manager, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Manager{
		password: []byte(password),
		secret:   secret,
		ttl:      ttl,
		logger:   logger,
	}, nil
}

// VerifyPassword compares candidate against the configured password in
// constant time. Always false when no password is configured.
func (m *Manager) VerifyPassword(candidate string) bool {
	if len(m.password) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), m.password) == 1
}

// Issue mints a token valid for the configured TTL.
func (m *Manager) Issue() (token string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    "linkboard",
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate checks a token's signature and expiry.
func (m *Manager) Validate(token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return jwt.ErrTokenUnverifiable
	}
	return nil
}

// Middleware guards mutating endpoints. The token is taken from the
// Authorization header or, for browser clients, the session cookie.
// Expired and invalid tokens are told apart in the log, not the
// response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.Fail(w, r, m.logger, http.StatusUnauthorized, "authorization required")
			return
		}
		if err := m.Validate(token); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				m.logger.Info("rejected expired token", "remote", r.RemoteAddr)
			} else {
				m.logger.Warn("rejected invalid token", "remote", r.RemoteAddr, "error", err)
			}
			httputil.Fail(w, r, m.logger, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
