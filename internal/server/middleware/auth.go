package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/internal/server/response"
)

// AuthConfig configures API key checks.
type AuthConfig struct {
	APIKey     string
	HeaderName string
	// ReadOnlyPublic leaves GET and HEAD requests unauthenticated.
	ReadOnlyPublic bool
}

// Auth requires the configured API key. An empty key disables the check.
func Auth(cfg AuthConfig, logger *zerolog.Logger) Middleware {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APIKey == "" || (cfg.ReadOnlyPublic && (r.Method == http.MethodGet || r.Method == http.MethodHead)) {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r, cfg.HeaderName)
			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Bool("key_provided", key != "").
					Msg("Authentication failed")
				response.Unauthorized(w, "Invalid or missing API key", "Provide a valid API key in the "+cfg.HeaderName+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request, header string) string {
	if key := r.Header.Get(header); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return key
	}
	return auth
}
