package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const tokenValidationTimeout = 5 * time.Second

// TokenValidator validates bearer tokens against the external identity
// endpoint with a single bounded call. Anything short of a 2xx — network
// failure, timeout, bad status — is a validation error, never an allow.
type TokenValidator struct {
	coreURL string
	httpc   *http.Client
}

// NewTokenValidator creates a validator for the given identity endpoint.
func NewTokenValidator(coreURL string) *TokenValidator {
	return &TokenValidator{
		coreURL: strings.TrimRight(coreURL, "/"),
		httpc:   &http.Client{Timeout: tokenValidationTimeout},
	}
}

// Validate checks the token. Returns nil only on a definitive allow.
func (v *TokenValidator) Validate(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, tokenValidationTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.coreURL+"/api/", nil)
	if err != nil {
		return fmt.Errorf("build token validation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("token validation call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("token validation rejected: status %d", resp.StatusCode)
	}
	return nil
}
