package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint joins the application origin and the relay path into a WebSocket URL.
// http and https origins map to ws and wss.
func Endpoint(siteURL, path string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("parse site url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("site url %q has no host", siteURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported site url scheme %q", u.Scheme)
	}

	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}
