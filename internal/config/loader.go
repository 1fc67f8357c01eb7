package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig wraps every validation failure. The server refuses to
// start on any of them.
var ErrInvalidConfig = errors.New("invalid configuration")

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte, environ map[string]string) []byte {
	return []byte(os.Expand(string(data), func(key string) string {
		return environ[key]
	}))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"/etc/tokengate/config.yaml",
	"/etc/tokengate/config.yml",
}

// Defaults returns the configuration used before any file or environment is applied
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				Lifetime: time.Hour,
				Issuer:   "tokengate",
			},
			Provider: ProviderConfig{
				Name:        "google",
				Issuer:      "https://accounts.google.com",
				Discovery:   true,
				Scopes:      []string{"openid", "profile", "email"},
				HTTPTimeout: 10 * time.Second,
			},
			Cookie: CookieConfig{
				Name:   "token",
				MaxAge: 24 * time.Hour,
			},
			Session: SessionConfig{
				FlowTTL: 10 * time.Minute,
			},
		},
	}
}

// Load loads the configuration from the specified file or default locations,
// then applies the process environment on top
func Load(configPath string) (*Config, error) {
	return LoadWithEnv(configPath, env.ToMap(os.Environ()))
}

// LoadWithEnv is Load with an explicit environment
func LoadWithEnv(configPath string, environ map[string]string) (*Config, error) {
	config := Defaults()

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" && fileExists(configPath) {
		slog.Info("loading config file", slog.String("path", configPath))
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		data = expandEnvVars(data, environ)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("config file %s not found", configPath)
	} else {
		slog.Info("no config file found, using defaults and environment")
	}

	// Environment variables take precedence over the file
	if err := env.ParseWithOptions(config, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.FrontendURL = strings.TrimRight(config.FrontendURL, "/")

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// validate rejects configurations the server must not start with
func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return invalid("server.port must be between 1 and 65535")
	}
	if config.Server.MetricsPort > 65535 {
		return invalid("server.metrics_port must be at most 65535")
	}

	if config.FrontendURL == "" {
		return invalid("frontend_url (FRONTEND_URL) is required")
	}
	if u, err := url.Parse(config.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("frontend_url must be an absolute URL, got %q", config.FrontendURL)
	}

	jwtCfg := config.Auth.JWT
	if jwtCfg.Secret == "" {
		return invalid("auth.jwt.secret (JWT_SECRET) is required")
	}
	if jwtCfg.Lifetime < time.Second {
		return invalid("auth.jwt.lifetime must be at least 1s")
	}
	if jwtCfg.ClockSkew < 0 {
		return invalid("auth.jwt.clock_skew cannot be negative")
	}

	p := config.Auth.Provider
	if p.ClientID == "" {
		return invalid("auth.provider.client_id (GOOGLE_CLIENT_ID) is required")
	}
	if p.ClientSecret == "" {
		return invalid("auth.provider.client_secret (GOOGLE_CLIENT_SECRET) is required")
	}
	if p.CallbackURL == "" {
		return invalid("auth.provider.callback_url (GOOGLE_CALLBACK_URL) is required")
	}
	if p.Discovery && p.Issuer == "" {
		return invalid("auth.provider.issuer is required for OIDC discovery")
	}
	if !p.Discovery && (p.AuthURL == "" || p.TokenURL == "") {
		return invalid("auth.provider.auth_url and token_url are required when discovery is disabled")
	}
	if len(p.Scopes) == 0 {
		return invalid("auth.provider.scopes cannot be empty")
	}

	if config.Auth.Cookie.Name == "" {
		return invalid("auth.cookie.name cannot be empty")
	}
	if config.Auth.Session.FlowTTL <= 0 {
		return invalid("auth.session.flow_ttl must be positive")
	}

	return nil
}
