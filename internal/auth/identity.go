package auth

import (
	"errors"
	"strings"
)

// ErrIncompleteIdentity is returned when a provider profile lacks a subject or an email
var ErrIncompleteIdentity = errors.New("identity requires a subject and an email")

// Identity is the normalized user record reported by the identity provider.
// It only exists while a credential is being issued and is never persisted.
type Identity struct {
	Subject     string // provider-scoped unique user identifier (sub)
	DisplayName string
	Email       string // first verified email when the provider reports several
	AvatarURL   string // optional
}

// NewIdentity builds an Identity, rejecting records without a subject or email
func NewIdentity(subject, displayName, email, avatarURL string) (Identity, error) {
	subject = strings.TrimSpace(subject)
	email = strings.TrimSpace(email)
	if subject == "" || email == "" {
		return Identity{}, ErrIncompleteIdentity
	}

	return Identity{
		Subject:     subject,
		DisplayName: strings.TrimSpace(displayName),
		Email:       email,
		AvatarURL:   strings.TrimSpace(avatarURL),
	}, nil
}

// ProviderKey returns a short form of the identity for logging
func (i Identity) ProviderKey() string {
	return "sub:" + i.Subject
}
