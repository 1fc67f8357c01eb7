package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/internal/pkg/metrics"
	"github.com/devilmonastery/tokengate/web/internal/session"
)

// Verifier checks a presented credential
type Verifier interface {
	Verify(token string, now time.Time) (*auth.Claims, error)
}

// ErrorResponse is the JSON body of a rejected API request
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// AuthMiddleware guards API routes with the bearer credential
type AuthMiddleware struct {
	verifier Verifier
	now      func() time.Time
	log      *slog.Logger
}

// AuthOption configures an AuthMiddleware
type AuthOption func(*AuthMiddleware)

// WithClock overrides the clock used for expiry checks
func WithClock(now func() time.Time) AuthOption {
	return func(m *AuthMiddleware) {
		m.now = now
	}
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(verifier Verifier, logger *slog.Logger, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		verifier: verifier,
		now:      time.Now,
		log:      logger.With(slog.String("component", "auth_middleware")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequireBearer admits requests carrying a valid bearer credential and puts
// its claims in the request context. No header is 401; anything presented
// that does not verify is 403.
func (m *AuthMiddleware) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := session.ExtractBearer(r)
		if errors.Is(err, session.ErrNoCredential) {
			metrics.RecordVerification("missing_token")
			WriteError(w, http.StatusUnauthorized, "No token", "missing_token")
			return
		}

		var claims *auth.Claims
		if err == nil {
			claims, err = m.verifier.Verify(token, m.now())
		}
		if err != nil {
			code := auth.VerifyErrorCode(err)
			if errors.Is(err, session.ErrMalformedHeader) {
				code = "malformed"
			}
			metrics.RecordVerification(code)
			m.log.Debug("rejected bearer credential",
				slog.String("code", code),
				slog.String("request_id", RequestIDFromContext(r.Context())))
			WriteError(w, http.StatusForbidden, "Invalid token", code)
			return
		}

		metrics.RecordVerification("")
		setSubject(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(auth.SetClaimsInContext(r.Context(), claims)))
	})
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: message, Code: code})
}
