package ws

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrBadBaseURL = errors.New("ws: base url must be http, https, ws or wss with a host")

// Endpoint builds a websocket URL for path on the host selected by base.
// http maps to ws and https to wss; the token rides as the `token` query credential.
func Endpoint(base, path, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBaseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", ErrBadBaseURL
	}
	if u.Host == "" {
		return "", ErrBadBaseURL
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// Redact hides the token credential so a channel URL can be logged.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "redacted")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
