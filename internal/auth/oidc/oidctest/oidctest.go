// Package oidctest runs an in-process OIDC provider for tests: discovery,
// JWKS, an authorization-code token endpoint with PKCE, and userinfo.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-client-secret"
	keyID        = "test-key"
)

type grant struct {
	challenge   string
	redirectURI string
}

// Server is a fake identity provider
type Server struct {
	*httptest.Server

	key *rsa.PrivateKey

	mu            sync.Mutex
	profile       map[string]interface{}
	issueIDToken  bool
	failExchange  bool
	grants        map[string]grant
	accessTokens  map[string]bool
	exchangeCalls int
}

// NewServer starts a provider that reports profile from userinfo and the ID token
func NewServer(profile map[string]interface{}) (*Server, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	s := &Server{
		key:          key,
		profile:      profile,
		issueIDToken: true,
		grants:       make(map[string]grant),
		accessTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", s.discovery)
	mux.HandleFunc("/keys", s.keys)
	mux.HandleFunc("/token", s.token)
	mux.HandleFunc("/userinfo", s.userinfo)
	s.Server = httptest.NewServer(mux)

	return s, nil
}

// Issuer returns the issuer URL advertised in discovery
func (s *Server) Issuer() string {
	return s.URL
}

// SetProfile replaces the profile reported for subsequent logins
func (s *Server) SetProfile(profile map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

// SetIssueIDToken controls whether token responses carry an id_token
func (s *Server) SetIssueIDToken(issue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueIDToken = issue
}

// SetFailExchange makes the token endpoint reject every grant
func (s *Server) SetFailExchange(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failExchange = fail
}

// ExchangeCalls returns how many token requests were received
func (s *Server) ExchangeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeCalls
}

// Authorize plays the consenting user: it validates an authorization URL
// produced by the application and returns the callback query parameters
func (s *Server) Authorize(authURL string) (url.Values, error) {
	q, err := s.parseAuthorization(authURL)
	if err != nil {
		return nil, err
	}

	code := randomString()

	s.mu.Lock()
	s.grants[code] = grant{
		challenge:   q.Get("code_challenge"),
		redirectURI: q.Get("redirect_uri"),
	}
	s.mu.Unlock()

	return url.Values{"code": {code}, "state": {q.Get("state")}}, nil
}

// Deny plays the user refusing consent
func (s *Server) Deny(authURL string) (url.Values, error) {
	q, err := s.parseAuthorization(authURL)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"error":             {"access_denied"},
		"error_description": {"The user denied access"},
		"state":             {q.Get("state")},
	}, nil
}

func (s *Server) parseAuthorization(authURL string) (url.Values, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	if got, want := u.Scheme+"://"+u.Host+u.Path, s.URL+"/authorize"; got != want {
		return nil, fmt.Errorf("authorization endpoint %s, want %s", got, want)
	}

	q := u.Query()
	if q.Get("client_id") != ClientID {
		return nil, fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		return nil, fmt.Errorf("unexpected response_type %q", q.Get("response_type"))
	}
	if q.Get("redirect_uri") == "" {
		return nil, fmt.Errorf("missing redirect_uri")
	}
	if q.Get("code_challenge") != "" && q.Get("code_challenge_method") != "S256" {
		return nil, fmt.Errorf("unexpected code_challenge_method %q", q.Get("code_challenge_method"))
	}
	return q, nil
}

func (s *Server) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + "/authorize",
		"token_endpoint":                        s.URL + "/token",
		"userinfo_endpoint":                     s.URL + "/userinfo",
		"jwks_uri":                              s.URL + "/keys",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (s *Server) keys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &s.key.PublicKey,
			KeyID:     keyID,
			Algorithm: "RS256",
			Use:       "sig",
		}},
	})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeCalls++

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != ClientID || clientSecret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	code := r.PostForm.Get("code")
	g, found := s.grants[code]
	delete(s.grants, code)
	if s.failExchange || !found || r.PostForm.Get("grant_type") != "authorization_code" ||
		r.PostForm.Get("redirect_uri") != g.redirectURI {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	if g.challenge != "" && s256(r.PostForm.Get("code_verifier")) != g.challenge {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "PKCE verification failed"})
		return
	}

	accessToken := randomString()
	s.accessTokens[accessToken] = true

	resp := map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if s.issueIDToken {
		idToken, err := s.signIDToken()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		resp["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) signIDToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range s.profile {
		claims[k] = v
	}
	claims["iss"] = s.URL
	claims["aud"] = ClientID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(time.Hour).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(s.key)
}

func (s *Server) userinfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !s.accessTokens[header[len(prefix):]] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, s.profile)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomString() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
