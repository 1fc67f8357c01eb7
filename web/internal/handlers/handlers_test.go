package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/internal/auth/oidc"
	"github.com/devilmonastery/tokengate/internal/auth/oidc/oidctest"
	"github.com/devilmonastery/tokengate/internal/config"
	"github.com/devilmonastery/tokengate/internal/pkg/logger"
	"github.com/devilmonastery/tokengate/web/internal/middleware"
	"github.com/devilmonastery/tokengate/web/internal/session"
)

const (
	frontendURL = "https://app.example.com"
	callbackURL = "https://api.example.com/auth/callback"
)

var testEpoch = time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)

type testEnv struct {
	provider *oidctest.Server
	router   http.Handler
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider, err := oidctest.NewServer(map[string]interface{}{
		"sub":     "g-1",
		"name":    "A",
		"email":   "a@x.com",
		"picture": "https://example.com/a.png",
	})
	if err != nil {
		t.Fatalf("oidctest.NewServer() error = %v", err)
	}
	t.Cleanup(provider.Close)

	adapter, err := oidc.New(context.Background(), config.ProviderConfig{
		Name:         "google",
		ClientID:     oidctest.ClientID,
		ClientSecret: oidctest.ClientSecret,
		CallbackURL:  callbackURL,
		Issuer:       provider.Issuer(),
		Discovery:    true,
		Scopes:       []string{"openid", "profile", "email"},
		HTTPTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("oidc.New() error = %v", err)
	}

	tm, err := auth.NewTokenManager("s3cr3t", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	flow, err := session.NewManager([]byte("s3cr3t"), 10*time.Minute)
	if err != nil {
		t.Fatalf("session.NewManager() error = %v", err)
	}

	env := &testEnv{provider: provider, now: testEpoch}
	clock := func() time.Time { return env.now }

	h := New(adapter, tm, session.NewCookieTransport("token", "", time.Hour), flow, frontendURL,
		logger.Discard(), WithClock(clock))
	authMw := middleware.NewAuthMiddleware(tm, logger.Discard(), middleware.WithClock(clock))
	env.router = NewRouter(h, authMw, logger.Discard())

	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// startLogin hits the login route and returns the provider redirect and the flow cookie
func (e *testEnv) startLogin(t *testing.T, path string) (string, []*http.Cookie) {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("login status = %d, want 302", rec.Code)
	}
	return rec.Header().Get("Location"), rec.Result().Cookies()
}

func (e *testEnv) callback(query url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.do(req)
}

func (e *testEnv) getUser(authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return e.do(req)
}

// login runs the whole flow and returns the issued token
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	location, cookies := e.startLogin(t, "/auth/login")
	query, err := e.provider.Authorize(location)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	rec := e.callback(query, cookies)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want 302 (body %q)", rec.Code, rec.Body.String())
	}
	c := findCookie(rec, "token")
	if c == nil {
		t.Fatal("expected a token cookie")
	}
	return c.Value
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var body middleware.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	for _, path := range []string{"/auth/login", "/auth/google"} {
		t.Run(path, func(t *testing.T) {
			e := newTestEnv(t)
			location, cookies := e.startLogin(t, path)

			u, err := url.Parse(location)
			if err != nil {
				t.Fatalf("invalid Location: %v", err)
			}
			if got := u.Scheme + "://" + u.Host + u.Path; got != e.provider.URL+"/authorize" {
				t.Errorf("redirect target = %s", got)
			}
			q := u.Query()
			if q.Get("state") == "" || q.Get("code_challenge") == "" {
				t.Errorf("missing state or PKCE challenge in %s", location)
			}
			if q.Get("redirect_uri") != callbackURL {
				t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
			}

			var flow *http.Cookie
			for _, c := range cookies {
				if c.Name == session.FlowSessionName {
					flow = c
				}
			}
			if flow == nil {
				t.Fatal("expected a flow cookie")
			}
		})
	}
}

// Successful login, then the credential opens /api/user
func TestLoginFlow_Success(t *testing.T) {
	e := newTestEnv(t)
	location, cookies := e.startLogin(t, "/auth/login")
	query, err := e.provider.Authorize(location)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	rec := e.callback(query, cookies)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want 302 (body %q)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != frontendURL+"/dashboard" {
		t.Errorf("Location = %q", got)
	}

	c := findCookie(rec, "token")
	if c == nil {
		t.Fatal("expected a token cookie")
	}
	if c.Path != "/" || !c.Secure || c.HttpOnly || c.SameSite != http.SameSiteNoneMode || c.MaxAge != 3600 {
		t.Errorf("unexpected cookie attributes %+v", c)
	}
	if flow := findCookie(rec, session.FlowSessionName); flow == nil || flow.MaxAge >= 0 {
		t.Errorf("expected the flow cookie to be cleared, got %+v", flow)
	}

	e.now = testEpoch.Add(10 * time.Minute)
	rec = e.getUser("Bearer " + c.Value)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/user status = %d (body %q)", rec.Code, rec.Body.String())
	}

	var user UserResponse
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	want := UserResponse{
		ID:          "g-1",
		DisplayName: "A",
		Email:       "a@x.com",
		AvatarURL:   "https://example.com/a.png",
		IssuedAt:    testEpoch.Unix(),
		ExpiresAt:   testEpoch.Add(time.Hour).Unix(),
	}
	if user != want {
		t.Errorf("user = %+v, want %+v", user, want)
	}
}

func TestGetUser_NoToken(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: e.login(t)})
	rec := e.do(req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Message != "No token" || body.Code != "missing_token" {
		t.Errorf("body = %+v", body)
	}
}

func TestGetUser_Expired(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	for _, offset := range []time.Duration{time.Hour, time.Hour + time.Second, 24 * time.Hour} {
		e.now = testEpoch.Add(offset)
		rec := e.getUser("Bearer " + token)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("offset %s: status = %d, want 403", offset, rec.Code)
		}
		body := decodeError(t, rec)
		if body.Message != "Invalid token" || body.Code != "expired" {
			t.Errorf("offset %s: body = %+v", offset, body)
		}
	}

	e.now = testEpoch.Add(time.Hour - time.Second)
	if rec := e.getUser("Bearer " + token); rec.Code != http.StatusOK {
		t.Errorf("one second before expiry: status = %d, want 200", rec.Code)
	}
}

func TestGetUser_Tampered(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	mid := len(payload) / 2
	if payload[mid] == 'A' {
		payload[mid] = 'B'
	} else {
		payload[mid] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	rec := e.getUser("Bearer " + tampered)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "bad_signature" {
		t.Errorf("code = %q, want bad_signature", body.Code)
	}
}

func TestGetUser_MalformedHeader(t *testing.T) {
	e := newTestEnv(t)

	for _, header := range []string{"Bearer not-a-token", "Token abc.def.ghi"} {
		rec := e.getUser(header)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%q: status = %d, want 403", header, rec.Code)
		}
		if body := decodeError(t, rec); body.Code != "malformed" {
			t.Errorf("%q: code = %q, want malformed", header, body.Code)
		}
	}
}

func TestCallback_Denied(t *testing.T) {
	e := newTestEnv(t)
	location, cookies := e.startLogin(t, "/auth/google")
	query, err := e.provider.Deny(location)
	if err != nil {
		t.Fatalf("Deny() error = %v", err)
	}

	rec := e.callback(query, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get(middleware.ErrorCodeHeader); got != "denied" {
		t.Errorf("%s = %q, want denied", middleware.ErrorCodeHeader, got)
	}
	if !strings.HasPrefix(rec.Body.String(), "authentication failed") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if findCookie(rec, "token") != nil {
		t.Error("no token cookie expected after a denied login")
	}
	if e.provider.ExchangeCalls() != 0 {
		t.Errorf("expected no token exchange, got %d", e.provider.ExchangeCalls())
	}
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(t *testing.T, e *testEnv) (url.Values, []*http.Cookie)
		wantCode string
	}{
		{
			name: "state mismatch",
			prepare: func(t *testing.T, e *testEnv) (url.Values, []*http.Cookie) {
				location, cookies := e.startLogin(t, "/auth/login")
				query, err := e.provider.Authorize(location)
				if err != nil {
					t.Fatalf("Authorize() error = %v", err)
				}
				query.Set("state", "forged")
				return query, cookies
			},
			wantCode: "invalid_state",
		},
		{
			name: "no flow cookie",
			prepare: func(t *testing.T, e *testEnv) (url.Values, []*http.Cookie) {
				location, _ := e.startLogin(t, "/auth/login")
				query, err := e.provider.Authorize(location)
				if err != nil {
					t.Fatalf("Authorize() error = %v", err)
				}
				return query, nil
			},
			wantCode: "invalid_state",
		},
		{
			name: "exchange rejected",
			prepare: func(t *testing.T, e *testEnv) (url.Values, []*http.Cookie) {
				location, cookies := e.startLogin(t, "/auth/login")
				query, err := e.provider.Authorize(location)
				if err != nil {
					t.Fatalf("Authorize() error = %v", err)
				}
				e.provider.SetFailExchange(true)
				return query, cookies
			},
			wantCode: "exchange_failed",
		},
		{
			name: "profile without email",
			prepare: func(t *testing.T, e *testEnv) (url.Values, []*http.Cookie) {
				e.provider.SetProfile(map[string]interface{}{"sub": "g-1", "name": "A"})
				location, cookies := e.startLogin(t, "/auth/login")
				query, err := e.provider.Authorize(location)
				if err != nil {
					t.Fatalf("Authorize() error = %v", err)
				}
				return query, cookies
			},
			wantCode: "incomplete_profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			query, cookies := tt.prepare(t, e)

			rec := e.callback(query, cookies)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401 (body %q)", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get(middleware.ErrorCodeHeader); got != tt.wantCode {
				t.Errorf("%s = %q, want %q", middleware.ErrorCodeHeader, got, tt.wantCode)
			}
			if findCookie(rec, "token") != nil {
				t.Error("no token cookie expected after a failed login")
			}
		})
	}
}

// A replayed callback cannot mint a second credential
func TestCallback_Replay(t *testing.T) {
	e := newTestEnv(t)
	location, cookies := e.startLogin(t, "/auth/login")
	query, err := e.provider.Authorize(location)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if rec := e.callback(query, cookies); rec.Code != http.StatusFound {
		t.Fatalf("first callback status = %d, want 302", rec.Code)
	}

	// still carrying the old flow cookie, but the code is already consumed
	rec := e.callback(query, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed callback status = %d, want 401", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/logout"},
		{http.MethodPost, "/auth/logout"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			e := newTestEnv(t)
			token := e.login(t)

			rec := e.do(httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != frontendURL+"/" {
				t.Errorf("Location = %q", got)
			}
			c := findCookie(rec, "token")
			if c == nil || c.MaxAge >= 0 || c.Value != "" {
				t.Errorf("expected an expired token cookie, got %+v", c)
			}

			// stateless: the credential itself still verifies until it expires
			if rec := e.getUser("Bearer " + token); rec.Code != http.StatusOK {
				t.Errorf("/api/user after logout: status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}
