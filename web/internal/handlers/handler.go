package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/internal/pkg/urlutil"
	"github.com/devilmonastery/tokengate/web/internal/session"
)

// Version is reported by /version; set at build time with -ldflags
var Version = "dev"

// IdentityProvider runs the delegated login with one external provider
type IdentityProvider interface {
	Name() string
	AuthCodeURL(scopes []string, state, codeVerifier string) string
	Complete(ctx context.Context, callback url.Values, codeVerifier string) (auth.Identity, error)
}

// CredentialIssuer mints the application credential for a verified identity
type CredentialIssuer interface {
	Issue(identity auth.Identity, now time.Time) (auth.Credential, error)
}

// Handler holds dependencies for all web handlers.
// Nothing in it changes after construction; requests share no state.
type Handler struct {
	provider    IdentityProvider
	issuer      CredentialIssuer
	transport   *session.CookieTransport
	flow        *session.Manager
	frontendURL string
	now         func() time.Time
	log         *slog.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithClock overrides the clock used when issuing credentials
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a new handler with dependencies
func New(provider IdentityProvider, issuer CredentialIssuer, transport *session.CookieTransport,
	flow *session.Manager, frontendURL string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		provider:    provider,
		issuer:      issuer,
		transport:   transport,
		flow:        flow,
		frontendURL: frontendURL,
		now:         time.Now,
		log:         logger.With(slog.String("component", "web_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// frontendPath joins path onto the frontend origin
func (h *Handler) frontendPath(path string) string {
	u, err := urlutil.FrontendURL(h.frontendURL, path)
	if err != nil {
		// the frontend URL is validated at startup
		h.log.Error("invalid frontend url", slog.String("error", err.Error()))
		return path
	}
	return u
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// VersionInfo reports the build version
func (h *Handler) VersionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
