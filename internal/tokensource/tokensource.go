package tokensource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	baseTransport http.RoundTripper
	authParams    map[string]string
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithAuthParams adds provider-specific query parameters to the authorization
// URL, e.g. token_access_type=offline for Dropbox.
func WithAuthParams(params map[string]string) Option {
	return func(c *clientConfig) {
		for k, v := range params {
			c.authParams[k] = v
		}
	}
}

// Client performs the authorization-code-with-PKCE requests of a public OAuth2 client.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	authParams map[string]string
}

// New creates a Client for the given OAuth2 configuration. RedirectURL in cfg
// is ignored; the redirect URI is passed per request.
func New(cfg *oauth2.Config, opts ...Option) *Client {
	c := &clientConfig{
		baseTransport: http.DefaultTransport,
		authParams:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout:   30 * time.Second, // Bounds token requests even if the caller's context has no deadline
			Transport: c.baseTransport,
		},
		authParams: c.authParams,
	}
}

// AuthorizationURL returns the URL of the consent page. The S256 challenge is
// derived from verifier; the verifier itself never leaves the client.
func (c *Client) AuthorizationURL(redirectURI, verifier string) (string, error) {
	if c.config.ClientID == "" {
		return "", errors.New("client ID cannot be empty")
	}
	if c.config.Endpoint.AuthURL == "" {
		return "", errors.New("authorization endpoint cannot be empty")
	}
	if verifier == "" {
		return "", errors.New("code verifier cannot be empty")
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
	}
	for k, v := range c.authParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return c.withRedirect(redirectURI).AuthCodeURL(uuid.NewString(), opts...), nil
}

// ExchangeCode trades an authorization code and its verifier for a token.
func (c *Client) ExchangeCode(ctx context.Context, redirectURI, code, verifier string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code cannot be empty")
	}

	token, err := c.withRedirect(redirectURI).Exchange(c.context(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}

// RefreshAccessToken obtains a new token using refreshToken.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token cannot be empty")
	}

	// An empty access token is never valid, so the source always hits the token endpoint.
	source := c.config.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	return token, nil
}

// HTTPClient returns the client used for token requests, for reuse by API calls.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) withRedirect(redirectURI string) *oauth2.Config {
	cfg := *c.config
	cfg.RedirectURL = redirectURI
	return &cfg
}

// context injects the configured HTTP client; the oauth2 package reads it from
// the oauth2.HTTPClient context key.
func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
