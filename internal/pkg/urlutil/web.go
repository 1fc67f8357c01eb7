package urlutil

import (
	"net/url"
	"strings"
)

// FrontendURL builds an absolute URL on the client application.
// Returns a URL like: {baseURL}/{path}, with exactly one slash between them.
func FrontendURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
