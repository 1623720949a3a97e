// Package fallback validates tokens directly against the identity provider
// when local key material is unavailable. It is the degraded path: one
// bounded network call per request, never consulted for tokens the local
// verifier already rejected cryptographically.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/symphainy/authgate/verifier"
)

const (
	// DefaultTimeout bounds the introspection call. A slow identity
	// provider must not hold the proxy's whole request path hostage.
	DefaultTimeout = 2 * time.Second

	userEndpoint = "/auth/v1/user"

	maxResponseSize = 1 * 1024 * 1024
)

var (
	// ErrUnavailable is returned when the introspection call times out or
	// fails at the transport level. Deliberately distinct from a rejected
	// token: the caller answers 503, not 401.
	ErrUnavailable = errors.New("fallback: identity provider unavailable")

	// ErrTokenRejected is returned when the identity provider answered and
	// did not accept the token.
	ErrTokenRejected = errors.New("fallback: token rejected by identity provider")
)

// Client calls the identity provider's user-introspection endpoint.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

// userResponse mirrors the provider's /auth/v1/user body.
type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
}

// NewClient builds a fallback validator for the given provider base URL and
// anon API key.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("fallback: base URL is required")
	}
	if apiKey == "" {
		return nil, errors.New("fallback: API key is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return c, nil
}

// Validate asks the identity provider whether the token is good.
//
// Transport failures and timeouts are ErrUnavailable; any non-200 answer is
// ErrTokenRejected. A 200 with a parsable subject becomes a Result shaped
// like a local verification outcome.
func (c *Client) Validate(ctx context.Context, rawToken string) (*verifier.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+userEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+rawToken)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTokenRejected, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", ErrUnavailable, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: response without a subject id", ErrTokenRejected)
	}

	return &verifier.Result{
		Subject: user.ID,
		Claims: &verifier.Claims{
			Subject:      user.ID,
			Email:        user.Email,
			UserMetadata: user.UserMetadata,
			AppMetadata:  user.AppMetadata,
		},
	}, nil
}
