package session

import (
	"net/http"
	"time"

	"github.com/devilmonastery/tokengate/internal/auth"
)

// CookieTransport hands a credential to the browser as a cookie the client
// app reads and echoes back as a bearer header. The cookie is readable from
// script (not HttpOnly) and SameSite=None for a frontend on another origin.
type CookieTransport struct {
	name   string
	domain string
	maxAge time.Duration
}

// NewCookieTransport creates a transport for the named cookie
func NewCookieTransport(name, domain string, maxAge time.Duration) *CookieTransport {
	return &CookieTransport{
		name:   name,
		domain: domain,
		maxAge: maxAge,
	}
}

// Attach sets the credential cookie
func (c *CookieTransport) Attach(w http.ResponseWriter, credential auth.Credential) {
	cookie := c.cookie(credential.Token)
	cookie.MaxAge = int(c.maxAge / time.Second)
	cookie.Expires = credential.IssuedAt.Add(c.maxAge).UTC()
	http.SetCookie(w, cookie)
}

// Detach expires the credential cookie
func (c *CookieTransport) Detach(w http.ResponseWriter) {
	cookie := c.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, cookie)
}

func (c *CookieTransport) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Domain:   c.domain,
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteNoneMode,
	}
}
