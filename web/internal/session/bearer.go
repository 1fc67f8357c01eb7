package session

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNoCredential is returned when the request carries no Authorization header
	ErrNoCredential = errors.New("no credential presented")

	// ErrMalformedHeader is returned when the Authorization header is not a bearer credential
	ErrMalformedHeader = errors.New("malformed authorization header")
)

// ExtractBearer returns the credential from the Authorization header.
// The scheme is matched case-insensitively.
func ExtractBearer(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrNoCredential
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedHeader
	}
	return token, nil
}
