package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURI turns an endpoint into a WebSocket URL. Absolute ws:// and
// wss:// URLs pass through verbatim; anything else is a path on the page's
// host, using wss when the page is served over https and ws otherwise.
func ResolveURI(uri, pageURL string) (string, error) {
	if strings.HasPrefix(uri, "ws://") || strings.HasPrefix(uri, "wss://") {
		return uri, nil
	}
	if pageURL == "" {
		return "", ErrNoPageURL
	}

	page, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	if page.Host == "" {
		return "", fmt.Errorf("page url %q has no host", pageURL)
	}

	scheme := "ws"
	if page.Scheme == "https" {
		scheme = "wss"
	}

	path := uri
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return scheme + "://" + page.Host + path, nil
}
