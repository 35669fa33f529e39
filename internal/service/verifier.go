package service

import (
	"context"
	"errors"
	"strings"

	"github.com/addongate/addongate/internal/config"
	"github.com/addongate/addongate/internal/model"
)

var (
	// ErrMissingCredential is returned when no Bearer credential is present.
	ErrMissingCredential = errors.New("missing or invalid authorization header")
	// ErrInvalidCredential is returned when the credential fails every check
	// the configured mode allows. External validation failures (timeouts,
	// network errors, non-2xx) also land here: absence of a definitive allow
	// is always a deny.
	ErrInvalidCredential = errors.New("invalid credential")
)

// TokenValidator validates a bearer token against the external identity
// collaborator. Implementations must carry a bounded timeout and return an
// error on anything other than a definitive allow.
type TokenValidator interface {
	Validate(ctx context.Context, token string) error
}

// Verifier checks a request's primary credential under the configured auth
// mode: local API keys, external tokens, or either.
type Verifier struct {
	mode   string
	keys   *KeyStore
	tokens TokenValidator
}

// NewVerifier creates a Verifier. tokens may be nil in api_key mode.
func NewVerifier(mode string, keys *KeyStore, tokens TokenValidator) *Verifier {
	return &Verifier{mode: mode, keys: keys, tokens: tokens}
}

// Mode returns the configured auth mode.
func (v *Verifier) Mode() string {
	return v.mode
}

// Verify authenticates the Authorization header value. On success it returns
// the matching key record, or nil when the request authenticated with an
// external token. In both mode the local key check runs first because it is
// cheaper; the external call is only attempted when no local key matches.
func (v *Verifier) Verify(ctx context.Context, authHeader string) (*model.APIKey, error) {
	token, ok := bearerToken(authHeader)
	if !ok {
		return nil, ErrMissingCredential
	}

	if v.mode == config.AuthModeAPIKey || v.mode == config.AuthModeBoth {
		key, err := v.keys.Verify(ctx, token)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrInvalidKey) {
			return nil, err
		}
	}

	if v.mode == config.AuthModeExternalToken || v.mode == config.AuthModeBoth {
		if v.tokens == nil {
			return nil, ErrInvalidCredential
		}
		if err := v.tokens.Validate(ctx, token); err != nil {
			return nil, ErrInvalidCredential
		}
		return nil, nil
	}

	return nil, ErrInvalidCredential
}

// FailureMessage returns the client-facing error body for an auth failure
// under the configured mode.
func (v *Verifier) FailureMessage(err error) string {
	if errors.Is(err, ErrMissingCredential) {
		return "Missing or invalid Authorization header"
	}
	switch v.mode {
	case config.AuthModeExternalToken:
		return "Invalid access token"
	case config.AuthModeBoth:
		return "Invalid API key or access token"
	default:
		return "Invalid API key"
	}
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}
