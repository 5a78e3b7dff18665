package middleware

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type AuthConfig struct {
	HMACSecret string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "market.caller"

// CallerFromContext returns the authenticated caller address placed on the
// request context by the Authenticator.
func CallerFromContext(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	return caller, ok
}

// Authenticator verifies bearer tokens and resolves the caller identity.
// The token subject carries the caller's 20-byte address in hex.
type Authenticator struct {
	secret    []byte
	clockSkew time.Duration
	logger    *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret:    []byte(strings.TrimSpace(cfg.HMACSecret)),
		clockSkew: skew,
		logger:    logger,
	}
}

func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			caller, err := a.resolveCaller(tokenString)
			if err != nil {
				a.logger.Warn("auth: token validation failed", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) resolveCaller(tokenString string) ([20]byte, error) {
	var caller [20]byte
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.clockSkew),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return caller, err
	}
	subject := strings.TrimPrefix(strings.TrimSpace(claims.Subject), "0x")
	decoded, err := hex.DecodeString(subject)
	if err != nil {
		return caller, fmt.Errorf("subject is not hex: %w", err)
	}
	if len(decoded) != len(caller) {
		return caller, fmt.Errorf("subject must be %d bytes, got %d", len(caller), len(decoded))
	}
	copy(caller[:], decoded)
	return caller, nil
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
