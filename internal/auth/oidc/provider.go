package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/internal/config"
	"github.com/devilmonastery/tokengate/internal/pkg/metrics"
)

var (
	ErrDenied            = errors.New("provider denied consent")
	ErrExchangeFailed    = errors.New("provider exchange failed")
	ErrIncompleteProfile = errors.New("provider profile is incomplete")
)

// deniedErrors are the OAuth error codes that mean the user did not consent
var deniedErrors = map[string]bool{
	"access_denied":        true,
	"consent_required":     true,
	"interaction_required": true,
	"login_required":       true,
}

// Adapter wraps the delegated-auth protocol of a single identity provider.
// It keeps no per-login state: state and the PKCE verifier travel with the
// caller between AuthCodeURL and Complete.
type Adapter struct {
	name         string
	oauth2Config *oauth2.Config
	provider     *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier // nil when the provider publishes no keys
	httpClient   *http.Client
}

// New builds the adapter, resolving endpoints through OIDC discovery unless
// the configuration lists them explicitly
func New(ctx context.Context, cfg config.ProviderConfig) (*Adapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.CallbackURL == "" {
		return nil, errors.New("provider config missing client id, client secret or callback url")
	}

	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: metrics.NewProviderTransport(cfg.Name, nil),
	}
	ctx = gooidc.ClientContext(ctx, httpClient)

	var provider *gooidc.Provider
	if cfg.Discovery {
		var err error
		provider, err = gooidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover provider %s: %w", cfg.Issuer, err)
		}
	} else {
		provider = (&gooidc.ProviderConfig{
			IssuerURL:   cfg.Issuer,
			AuthURL:     cfg.AuthURL,
			TokenURL:    cfg.TokenURL,
			UserInfoURL: cfg.UserInfoURL,
			JWKSURL:     cfg.JWKSURL,
			Algorithms:  []string{gooidc.RS256},
		}).NewProvider(ctx)
	}

	var verifier *gooidc.IDTokenVerifier
	if cfg.Discovery || cfg.JWKSURL != "" {
		verifier = provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	}

	return &Adapter{
		name: cfg.Name,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		provider:   provider,
		verifier:   verifier,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier
func (a *Adapter) Name() string {
	return a.name
}

// AuthCodeURL builds the provider authorization URL for the requested scopes,
// carrying the CSRF state and the PKCE S256 challenge for codeVerifier
func (a *Adapter) AuthCodeURL(scopes []string, state, codeVerifier string) string {
	cfg := *a.oauth2Config
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	if codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// Complete handles the provider's redirect back: it exchanges the grant and
// maps the provider profile to an Identity. Nothing is retried; the caller's
// context bounds the outbound calls.
func (a *Adapter) Complete(ctx context.Context, callback url.Values, codeVerifier string) (auth.Identity, error) {
	if errCode := callback.Get("error"); errCode != "" {
		desc := callback.Get("error_description")
		if deniedErrors[errCode] {
			return auth.Identity{}, fmt.Errorf("%w: %s %s", ErrDenied, errCode, desc)
		}
		return auth.Identity{}, fmt.Errorf("%w: provider returned %s %s", ErrExchangeFailed, errCode, desc)
	}

	code := callback.Get("code")
	if code == "" {
		return auth.Identity{}, fmt.Errorf("%w: missing authorization code", ErrExchangeFailed)
	}

	ctx = gooidc.ClientContext(ctx, a.httpClient)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := a.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	profile := Profile{}
	idSubject := ""

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" && a.verifier != nil {
		idToken, err := a.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return auth.Identity{}, fmt.Errorf("%w: id_token verification failed: %v", ErrExchangeFailed, err)
		}
		if err := idToken.Claims(&profile); err != nil {
			return auth.Identity{}, fmt.Errorf("%w: id_token claims: %v", ErrExchangeFailed, err)
		}
		idSubject = idToken.Subject
	}

	// Userinfo carries the full profile; its values win over the ID token's
	if a.provider.UserInfoEndpoint() != "" {
		info, err := a.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return auth.Identity{}, fmt.Errorf("%w: userinfo: %v", ErrExchangeFailed, err)
		}
		if idSubject != "" && info.Subject != "" && info.Subject != idSubject {
			return auth.Identity{}, fmt.Errorf("%w: userinfo subject does not match id_token", ErrExchangeFailed)
		}

		var userinfo Profile
		if err := info.Claims(&userinfo); err != nil {
			return auth.Identity{}, fmt.Errorf("%w: userinfo claims: %v", ErrExchangeFailed, err)
		}
		for k, v := range userinfo {
			profile[k] = v
		}
	}

	identity, err := profile.Identity()
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", ErrIncompleteProfile, err)
	}
	return identity, nil
}

// ErrorCode maps an adapter error to a stable code for clients
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDenied):
		return "denied"
	case errors.Is(err, ErrIncompleteProfile):
		return "incomplete_profile"
	default:
		return "exchange_failed"
	}
}
