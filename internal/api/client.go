// Package api is the REST client for the grievance portal backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grievance-chat/internal/apierr"
	"grievance-chat/internal/observability"
)

const (
	maxResponseBytes = 4 << 20
	defaultTimeout   = 15 * time.Second
)

var ErrBadBaseURL = errors.New("api: base url must be http or https with a host")

// TokenSource supplies the bearer token for each request. An empty token sends no header.
type TokenSource interface {
	Token() string
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

type Client struct {
	base    *url.URL
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
}

func New(baseURL string, tokens TokenSource, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadBaseURL, baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = observability.Logger()
	}
	return &Client{base: u, tokens: tokens, http: hc, timeout: timeout, log: log.With("component", "api")}, nil
}

// BaseURL is the backend origin the client was built for.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string) string {
	u := *c.base
	path, query, _ := strings.Cut(path, "?")
	u.Path = c.base.Path + path
	u.RawQuery = query
	return u.String()
}

// do sends one JSON request and decodes a 2xx body into out. Non-2xx
// responses come back as *apierr.Error.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("create %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.log.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apierr.Normalize(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
