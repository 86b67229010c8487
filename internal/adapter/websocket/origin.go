package websocket

import (
	"fmt"
	"net/url"
	"strings"
)

// StreamURL returns the live stream endpoint for identifier below baseURL,
// e.g. ws://localhost:8000/ws/all.
func StreamURL(baseURL, identifier string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse stream base url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("stream base url %q: scheme must be ws or wss", baseURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream base url %q: missing host", baseURL)
	}
	return u.JoinPath("ws", identifier).String(), nil
}

// extractOrigin derives the Origin header a browser would send for a stream
// at rawURL: ws maps to http and wss to https.
func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	switch strings.ToLower(scheme) {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host
}
