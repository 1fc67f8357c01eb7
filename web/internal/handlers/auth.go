package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/devilmonastery/tokengate/internal/auth/oidc"
	"github.com/devilmonastery/tokengate/internal/pkg/metrics"
	"github.com/devilmonastery/tokengate/web/internal/middleware"
	"github.com/devilmonastery/tokengate/web/internal/session"
)

// Login starts the OAuth authorization code flow with the identity provider
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flow.Begin(w, r)
	if err != nil {
		h.log.Error("failed to save flow session",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())))
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	metrics.LoginRedirects.WithLabelValues(h.provider.Name()).Inc()

	// Redirect to OAuth provider
	http.Redirect(w, r, h.provider.AuthCodeURL(nil, flow.State, flow.CodeVerifier), http.StatusFound)
}

// AuthCallback handles the provider's redirect back: it completes the login,
// issues the credential cookie and sends the browser to the dashboard
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	log := h.log.With(slog.String("request_id", middleware.RequestIDFromContext(r.Context())))

	// A provider error ends the flow before the state is looked at
	if query.Get("error") != "" {
		h.flow.Clear(w)
		_, err := h.provider.Complete(r.Context(), query, "")
		h.authFailed(w, r, log, oidc.ErrorCode(err), err, 0)
		return
	}

	flow, err := h.flow.Finish(w, r, query.Get("state"))
	if err != nil {
		h.authFailed(w, r, log, "invalid_state", err, 0)
		return
	}

	start := time.Now()
	identity, err := h.provider.Complete(r.Context(), query, flow.CodeVerifier)
	exchange := time.Since(start)
	if err != nil {
		h.authFailed(w, r, log, oidc.ErrorCode(err), err, exchange)
		return
	}

	credential, err := h.issuer.Issue(identity, h.now())
	if err != nil {
		log.Error("failed to issue credential", slog.String("error", err.Error()))
		metrics.RecordCallback(h.provider.Name(), "issue_failed", exchange)
		http.Error(w, "Failed to complete login", http.StatusInternalServerError)
		return
	}

	h.transport.Attach(w, credential)
	metrics.CredentialsIssued.Inc()
	metrics.RecordCallback(h.provider.Name(), "success", exchange)

	log.Info("login completed",
		slog.String("provider", h.provider.Name()),
		slog.String("identity", identity.ProviderKey()),
		slog.Time("expires_at", credential.ExpiresAt))

	http.Redirect(w, r, h.frontendPath("/dashboard"), http.StatusFound)
}

// authFailed answers a failed callback with 401 and no credential cookie
func (h *Handler) authFailed(w http.ResponseWriter, r *http.Request, log *slog.Logger, code string, err error, exchange time.Duration) {
	level := slog.LevelWarn
	if errors.Is(err, oidc.ErrDenied) || errors.Is(err, session.ErrStateMismatch) {
		level = slog.LevelInfo
	}
	log.Log(r.Context(), level, "login failed",
		slog.String("provider", h.provider.Name()),
		slog.String("code", code),
		slog.String("error", errString(err)))

	metrics.RecordCallback(h.provider.Name(), code, exchange)

	w.Header().Set(middleware.ErrorCodeHeader, code)
	http.Error(w, "authentication failed: "+code, http.StatusUnauthorized)
}

// Logout drops the credential cookie and any login in progress.
// Issued credentials stay valid until they expire.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.transport.Detach(w)
	h.flow.Clear(w)
	metrics.Logouts.Inc()

	http.Redirect(w, r, h.frontendPath("/"), http.StatusFound)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
