package oidc

import (
	"fmt"
	"strings"

	"github.com/devilmonastery/tokengate/internal/auth"
)

// Profile is the raw profile reported by the provider, merged from the ID
// token and the userinfo response. It never leaves this package: Identity
// is the validated mapping.
type Profile map[string]interface{}

// Identity validates and normalizes the profile
func (p Profile) Identity() (auth.Identity, error) {
	return auth.NewIdentity(p.subject(), p.name(), p.email(), p.picture())
}

func (p Profile) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		// numeric ids (GitHub-style "id")
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func (p Profile) subject() string {
	if sub := p.str("sub"); sub != "" {
		return sub
	}
	return p.str("id")
}

// name extracts the display name (provider-specific logic)
func (p Profile) name() string {
	if name := p.str("name"); name != "" {
		return name // Standard OIDC claim (Google, etc.)
	}
	if given := p.str("given_name"); given != "" {
		return strings.TrimSpace(given + " " + p.str("family_name"))
	}
	for _, key := range []string{"displayName", "preferred_username", "nickname", "login"} {
		if v := p.str(key); v != "" {
			return v
		}
	}
	return ""
}

// email prefers the standard claim unless the provider marks it unverified,
// then the first verified entry of an emails list. Lists that carry no
// verification flags fall back to their first entry.
func (p Profile) email() string {
	if email := p.str("email"); email != "" {
		if verified, ok := p["email_verified"].(bool); !ok || verified {
			return email
		}
	}

	entries, ok := p["emails"].([]interface{})
	if !ok {
		return ""
	}

	first, flagged := "", false
	for _, entry := range entries {
		value, verified, known := emailEntry(entry)
		if value == "" {
			continue
		}
		if verified {
			return value
		}
		flagged = flagged || known
		if first == "" {
			first = value
		}
	}
	if flagged {
		return ""
	}
	return first
}

// emailEntry reads one emails list entry: the address, whether it is
// verified, and whether the entry reports verification at all
func emailEntry(entry interface{}) (string, bool, bool) {
	switch e := entry.(type) {
	case string:
		return strings.TrimSpace(e), false, false
	case map[string]interface{}:
		value, _ := e["value"].(string)
		verified, known := e["verified"].(bool)
		return strings.TrimSpace(value), verified, known
	default:
		return "", false, false
	}
}

// picture extracts the profile picture URL
func (p Profile) picture() string {
	if picture := p.str("picture"); picture != "" {
		return picture
	}
	if avatar := p.str("avatar_url"); avatar != "" {
		return avatar
	}
	if photos, ok := p["photos"].([]interface{}); ok && len(photos) > 0 {
		if photo, ok := photos[0].(map[string]interface{}); ok {
			value, _ := photo["value"].(string)
			return strings.TrimSpace(value)
		}
	}
	return ""
}
