package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"GOOGLE_CLIENT_ID":     "client-id",
		"GOOGLE_CLIENT_SECRET": "client-secret",
		"GOOGLE_CALLBACK_URL":  "https://api.example.com/auth/callback",
		"FRONTEND_URL":         "https://app.example.com/",
		"JWT_SECRET":           "s3cret",
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithEnv_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, "{}\n"), requiredEnv())
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Auth.JWT.Lifetime != time.Hour {
		t.Errorf("Lifetime = %s, want 1h", cfg.Auth.JWT.Lifetime)
	}
	if cfg.Auth.CookieMaxAge() != 24*time.Hour {
		t.Errorf("CookieMaxAge = %s, want 24h", cfg.Auth.CookieMaxAge())
	}
	if cfg.Auth.Cookie.Name != "token" {
		t.Errorf("Cookie.Name = %q, want token", cfg.Auth.Cookie.Name)
	}
	if got := strings.Join(cfg.Auth.Provider.Scopes, " "); got != "openid profile email" {
		t.Errorf("Scopes = %q", got)
	}
	if cfg.FrontendURL != "https://app.example.com" {
		t.Errorf("FrontendURL = %q, trailing slash should be trimmed", cfg.FrontendURL)
	}
	if got := cfg.Server.MetricsAddr(); got != ":8010" {
		t.Errorf("MetricsAddr = %q, want :8010", got)
	}
}

func TestLoadWithEnv_FileWithExpansion(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  metrics_port: -1
frontend_url: https://frontend.example.com
auth:
  jwt:
    secret: ${SIGNING_KEY}
    lifetime: 30m
  provider:
    client_id: file-client
    client_secret: file-secret
    callback_url: https://api.example.com/cb
    discovery: false
    auth_url: https://idp.example.com/auth
    token_url: https://idp.example.com/token
    scopes: [profile, email]
  cookie:
    max_age: 12h
    domain: example.com
`)

	cfg, err := LoadWithEnv(path, map[string]string{"SIGNING_KEY": "from-env-expansion"})
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.MetricsAddr() != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.Server.MetricsAddr())
	}
	if cfg.Auth.JWT.Secret != "from-env-expansion" {
		t.Errorf("Secret = %q, want expanded value", cfg.Auth.JWT.Secret)
	}
	if cfg.Auth.JWT.Lifetime != 30*time.Minute {
		t.Errorf("Lifetime = %s, want 30m", cfg.Auth.JWT.Lifetime)
	}
	if cfg.Auth.CookieMaxAge() != 12*time.Hour {
		t.Errorf("CookieMaxAge = %s, want 12h", cfg.Auth.CookieMaxAge())
	}
	if cfg.Auth.Provider.Discovery {
		t.Error("Discovery should be disabled by the file")
	}
}

func TestLoadWithEnv_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
frontend_url: https://frontend.example.com
auth:
  jwt:
    secret: file-secret
  provider:
    client_id: file-client
`)

	environ := requiredEnv()
	environ["JWT_TTL"] = "15m"
	environ["PORT"] = "8123"
	environ["OAUTH_SCOPES"] = "openid,email"

	cfg, err := LoadWithEnv(path, environ)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Auth.JWT.Secret != "s3cret" {
		t.Errorf("Secret = %q, want environment value", cfg.Auth.JWT.Secret)
	}
	if cfg.Auth.Provider.ClientID != "client-id" {
		t.Errorf("ClientID = %q, want environment value", cfg.Auth.Provider.ClientID)
	}
	if cfg.Auth.JWT.Lifetime != 15*time.Minute {
		t.Errorf("Lifetime = %s, want 15m", cfg.Auth.JWT.Lifetime)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("Port = %d, want 8123", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Auth.Provider.Scopes, " "); got != "openid email" {
		t.Errorf("Scopes = %q, want openid email", got)
	}
}

func TestLoadWithEnv_ValidationIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantMsg string
	}{
		{name: "missing signing secret", mutate: func(e map[string]string) { delete(e, "JWT_SECRET") }, wantMsg: "JWT_SECRET"},
		{name: "missing client id", mutate: func(e map[string]string) { delete(e, "GOOGLE_CLIENT_ID") }, wantMsg: "GOOGLE_CLIENT_ID"},
		{name: "missing client secret", mutate: func(e map[string]string) { delete(e, "GOOGLE_CLIENT_SECRET") }, wantMsg: "GOOGLE_CLIENT_SECRET"},
		{name: "missing callback", mutate: func(e map[string]string) { delete(e, "GOOGLE_CALLBACK_URL") }, wantMsg: "GOOGLE_CALLBACK_URL"},
		{name: "missing frontend", mutate: func(e map[string]string) { delete(e, "FRONTEND_URL") }, wantMsg: "FRONTEND_URL"},
		{name: "relative frontend", mutate: func(e map[string]string) { e["FRONTEND_URL"] = "app.example.com" }, wantMsg: "absolute"},
		{name: "zero lifetime", mutate: func(e map[string]string) { e["JWT_TTL"] = "0s" }, wantMsg: "lifetime"},
		{name: "bad port", mutate: func(e map[string]string) { e["PORT"] = "70000" }, wantMsg: "server.port"},
		{name: "discovery off without endpoints", mutate: func(e map[string]string) { e["OIDC_DISCOVERY"] = "false" }, wantMsg: "auth_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := requiredEnv()
			tt.mutate(environ)

			_, err := LoadWithEnv(writeConfig(t, "{}\n"), environ)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadWithEnv_MissingExplicitFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), requiredEnv())
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestCookieMaxAge_ZeroFollowsLifetime(t *testing.T) {
	a := AuthConfig{JWT: JWTConfig{Lifetime: 30 * time.Minute}}
	if got := a.CookieMaxAge(); got != 30*time.Minute {
		t.Errorf("CookieMaxAge = %s, want the credential lifetime", got)
	}

	a.Cookie.MaxAge = 24 * time.Hour
	if got := a.CookieMaxAge(); got != 24*time.Hour {
		t.Errorf("CookieMaxAge = %s, want 24h", got)
	}
}
