// Package upstream talks to the privileged control API the gateway fronts:
// forwarding admitted requests and validating external bearer tokens.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Response is a relayed upstream response: status and payload are passed back
// to the client verbatim.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client forwards requests to the upstream control API, authenticating with
// the gateway's own bearer token. One upstream; the base URL is fixed at
// construction.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a forwarding client. Per-request timeouts come from the
// route table, so the underlying http.Client carries none.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{},
		logger:  logger,
	}
}

// Forward sends the request to the upstream path and returns the relayed
// response. The timeout bounds the whole exchange; addon updates need a much
// longer budget than status reads.
func (c *Client) Forward(ctx context.Context, method, path string, body io.Reader, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}

// ResolveToken finds the upstream auth token: explicit config value first,
// then the SUPERVISOR_TOKEN and HASSIO_TOKEN environment variables, then the
// token file. Returns empty when nothing is found; the caller decides whether
// that is fatal.
func ResolveToken(configured, tokenFile string) string {
	if configured != "" {
		return configured
	}
	if t := os.Getenv("SUPERVISOR_TOKEN"); t != "" {
		return t
	}
	if t := os.Getenv("HASSIO_TOKEN"); t != "" {
		return t
	}
	if tokenFile != "" {
		if data, err := os.ReadFile(tokenFile); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
