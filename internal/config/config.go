package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig `yaml:"server"`
	FrontendURL string       `yaml:"frontend_url" env:"FRONTEND_URL"` // origin of the client app; redirect targets and CORS allow-list
	Auth        AuthConfig   `yaml:"auth"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT" default:"8000"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT" default:"0"` // 0 means Port+10, negative disables
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// AuthConfig holds everything the login flow needs
type AuthConfig struct {
	JWT      JWTConfig      `yaml:"jwt"`
	Provider ProviderConfig `yaml:"provider"`
	Cookie   CookieConfig   `yaml:"cookie"`
	Session  SessionConfig  `yaml:"session"`
}

// JWTConfig holds credential signing configuration
type JWTConfig struct {
	Secret    string        `yaml:"secret" env:"JWT_SECRET"`                     // HMAC signing key (required)
	Lifetime  time.Duration `yaml:"lifetime" env:"JWT_TTL" default:"1h"`         // credential ttl
	Issuer    string        `yaml:"issuer" env:"JWT_ISSUER" default:"tokengate"` // iss claim
	ClockSkew time.Duration `yaml:"clock_skew" env:"JWT_CLOCK_SKEW" default:"0s"`
}

// ProviderConfig holds the OAuth/OIDC identity provider configuration
type ProviderConfig struct {
	Name         string        `yaml:"name" default:"google"`
	ClientID     string        `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	CallbackURL  string        `yaml:"callback_url" env:"GOOGLE_CALLBACK_URL"`
	Issuer       string        `yaml:"issuer" env:"OIDC_ISSUER" default:"https://accounts.google.com"`
	Discovery    bool          `yaml:"discovery" env:"OIDC_DISCOVERY" default:"true"` // false uses the explicit endpoints below
	AuthURL      string        `yaml:"auth_url,omitempty"`
	TokenURL     string        `yaml:"token_url,omitempty"`
	UserInfoURL  string        `yaml:"userinfo_url,omitempty"`
	JWKSURL      string        `yaml:"jwks_url,omitempty"`
	Scopes       []string      `yaml:"scopes,omitempty" env:"OAUTH_SCOPES" envSeparator:","`
	HTTPTimeout  time.Duration `yaml:"http_timeout" default:"10s"`
}

// CookieConfig holds the credential cookie configuration
type CookieConfig struct {
	Name   string        `yaml:"name" default:"token"`
	Domain string        `yaml:"domain,omitempty" env:"COOKIE_DOMAIN"`
	MaxAge time.Duration `yaml:"max_age" env:"COOKIE_MAX_AGE" default:"24h"` // 0 means the credential lifetime
}

// SessionConfig holds the short-lived login flow cookie configuration
type SessionConfig struct {
	Secret  string        `yaml:"secret" env:"SESSION_SECRET"` // optional, derived from auth.jwt.secret when empty
	FlowTTL time.Duration `yaml:"flow_ttl" default:"10m"`
}

// ListenAddr returns the HTTP listen address
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsAddr returns the metrics listen address, or "" when metrics are disabled
func (s ServerConfig) MetricsAddr() string {
	switch {
	case s.MetricsPort < 0:
		return ""
	case s.MetricsPort == 0:
		return fmt.Sprintf("%s:%d", s.Host, s.Port+10)
	default:
		return fmt.Sprintf("%s:%d", s.Host, s.MetricsPort)
	}
}

// CookieMaxAge returns the credential cookie lifetime
func (a AuthConfig) CookieMaxAge() time.Duration {
	if a.Cookie.MaxAge > 0 {
		return a.Cookie.MaxAge
	}
	return a.JWT.Lifetime
}
