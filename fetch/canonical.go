package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hubenschmidt/go-pagesearch/core"
)

// CanonicalURL normalizes a page URL into the source key it is stored under:
// scheme and host lowercased, default ports and fragment dropped, and an empty
// path written as "/". Only absolute http and https URLs are accepted.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url %q", core.ErrInvalidInput, raw)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: url %q has no host", core.ErrInvalidInput, raw)
	}

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u.String(), nil
}
