package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/oauth2"
)

const (
	// FlowSessionName is the name of the login flow cookie
	FlowSessionName = "tokengate_flow"

	// StateKey is the session key for the CSRF state
	StateKey = "oauth_state"

	// CodeVerifierKey is the session key for the PKCE code verifier
	CodeVerifierKey = "oauth_code_verifier"
)

// ErrStateMismatch is returned when the callback state does not match the
// state stored at login, or no login is in progress
var ErrStateMismatch = errors.New("oauth state mismatch")

// FlowState is what the login redirect leaves behind for the callback
type FlowState struct {
	State        string
	CodeVerifier string
}

// Manager wraps gorilla/sessions for the login flow. The flow cookie lives
// only between the redirect to the provider and the callback.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a flow manager. The cookie signing and encryption keys
// are derived from secret, so any length works.
func NewManager(secret []byte, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("flow session secret is required")
	}

	hashKey, blockKey, err := deriveKeys(secret)
	if err != nil {
		return nil, err
	}

	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   true,
		// Lax so the cookie survives the top-level redirect back from the provider
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(ttl / time.Second))

	return &Manager{store: store}, nil
}

// deriveKeys expands secret into a 32 byte HMAC key and a 32 byte AES key
func deriveKeys(secret []byte) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("tokengate login flow cookie"))

	keys := make([]byte, 64)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, nil, fmt.Errorf("derive flow cookie keys: %w", err)
	}
	return keys[:32], keys[32:], nil
}

// Begin starts a login: it generates the state and PKCE verifier, stores
// them in the flow cookie and returns them
func (m *Manager) Begin(w http.ResponseWriter, r *http.Request) (FlowState, error) {
	flow := FlowState{
		State:        oauth2.GenerateVerifier(),
		CodeVerifier: oauth2.GenerateVerifier(),
	}

	// A stale or undecodable cookie is replaced
	session, err := m.store.Get(r, FlowSessionName)
	if err != nil {
		session, _ = m.store.New(r, FlowSessionName)
	}

	session.Values[StateKey] = flow.State
	session.Values[CodeVerifierKey] = flow.CodeVerifier
	if err := session.Save(r, w); err != nil {
		return FlowState{}, fmt.Errorf("save flow session: %w", err)
	}
	return flow, nil
}

// Finish consumes the flow cookie and checks state against it. The cookie
// is cleared whatever the outcome, so a state value is only ever accepted once.
func (m *Manager) Finish(w http.ResponseWriter, r *http.Request, state string) (FlowState, error) {
	session, err := m.store.Get(r, FlowSessionName)
	if err != nil {
		m.expire(w)
		return FlowState{}, fmt.Errorf("%w: unreadable flow cookie", ErrStateMismatch)
	}

	flow := FlowState{}
	flow.State, _ = session.Values[StateKey].(string)
	flow.CodeVerifier, _ = session.Values[CodeVerifierKey].(string)

	m.expire(w)

	if flow.State == "" {
		return FlowState{}, fmt.Errorf("%w: no login in progress", ErrStateMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(flow.State), []byte(state)) != 1 {
		return FlowState{}, ErrStateMismatch
	}
	return flow, nil
}

// Clear removes the flow cookie (logout)
func (m *Manager) Clear(w http.ResponseWriter) {
	m.expire(w)
}

func (m *Manager) expire(w http.ResponseWriter) {
	opts := *m.store.Options
	opts.MaxAge = -1
	http.SetCookie(w, sessions.NewCookie(FlowSessionName, "", &opts))
}
