package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/florianilch/decentstore/internal/authflow"
	"github.com/florianilch/decentstore/internal/provider"
	"github.com/florianilch/decentstore/internal/tokensource"
)

// Service describes a remote storage service reachable through OAuth2 with PKCE.
type Service struct {
	// Name is the provider type name; it also namespaces stored tokens.
	Name       string
	Endpoint   oauth2.Endpoint
	APIURL     string
	Scopes     []string
	AuthParams map[string]string

	// Probe builds the representative API request used to validate a token.
	Probe func(ctx context.Context, apiURL string) (*http.Request, error)
}

// RemoteOptions are the activation options shared by OAuth-backed providers.
type RemoteOptions struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret"`

	// Endpoint overrides, mainly for tests and self-hosted deployments.
	AuthURL  string `json:"auth_url" validate:"omitempty,url"`
	TokenURL string `json:"token_url" validate:"omitempty,url"`
	APIURL   string `json:"api_url" validate:"omitempty,url"`
}

// Remote is a provider backed by an OAuth2-protected remote service.
type Remote struct {
	service Service
	flow    *authflow.Flow
	backend *remoteBackend
}

// Compile-time checks to ensure Remote implements the provider contract
var (
	_ provider.Provider   = (*Remote)(nil)
	_ provider.AuthStatus = (*Remote)(nil)
)

// RemoteType returns the provider type for service.
func RemoteType(service Service) provider.Type {
	return provider.Type{
		Name: service.Name,
		New: func(host provider.Host, opts provider.Options) (provider.Provider, error) {
			return NewRemote(service, host, opts)
		},
	}
}

// NewRemote creates a Remote for service. The client_id option is required.
func NewRemote(service Service, host provider.Host, opts provider.Options) (*Remote, error) {
	var o RemoteOptions
	if err := provider.DecodeOptions(service.Name, opts, &o); err != nil {
		return nil, err
	}

	endpoint := service.Endpoint
	if o.AuthURL != "" {
		endpoint.AuthURL = o.AuthURL
	}
	if o.TokenURL != "" {
		endpoint.TokenURL = o.TokenURL
	}
	apiURL := service.APIURL
	if o.APIURL != "" {
		apiURL = o.APIURL
	}

	client := tokensource.New(&oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       service.Scopes,
	}, tokensource.WithAuthParams(service.AuthParams))

	backend := &remoteBackend{
		service: service,
		client:  client,
		apiURL:  strings.TrimSuffix(apiURL, "/"),
	}

	flow, err := authflow.New(service.Name, backend, host.Environment(), host.SessionStore(), host.AuthStore(),
		authflow.WithLogger(host.Logger()))
	if err != nil {
		return nil, fmt.Errorf("creating auth flow for %s: %w", service.Name, err)
	}

	return &Remote{service: service, flow: flow, backend: backend}, nil
}

// Authenticate starts the PKCE handshake by navigating to the consent page.
func (r *Remote) Authenticate(ctx context.Context) error {
	return r.flow.Authenticate(ctx)
}

// HandleAuthCallback completes a pending handshake or resumes from stored tokens.
func (r *Remote) HandleAuthCallback(ctx context.Context) error {
	return r.flow.HandleAuthCallback(ctx)
}

// Authenticated reports whether the provider holds a usable access token.
func (r *Remote) Authenticated() bool {
	return r.flow.Authenticated()
}

// State returns the handshake state.
func (r *Remote) State() authflow.State {
	return r.flow.State()
}

// Probe runs the representative API call with refresh-on-unauthorized.
func (r *Remote) Probe(ctx context.Context) error {
	return r.flow.Call(ctx, r.backend.Probe)
}

// remoteBackend adapts a tokensource.Client and the service API to authflow.Backend.
type remoteBackend struct {
	service Service
	client  *tokensource.Client
	apiURL  string
}

// Compile-time check to ensure remoteBackend implements authflow.Backend
var _ authflow.Backend = (*remoteBackend)(nil)

func (b *remoteBackend) AuthorizationURL(_ context.Context, redirectURI, verifier string) (string, error) {
	return b.client.AuthorizationURL(redirectURI, verifier)
}

func (b *remoteBackend) ExchangeCode(ctx context.Context, redirectURI, code, verifier string) (authflow.TokenPair, error) {
	token, err := b.client.ExchangeCode(ctx, redirectURI, code, verifier)
	if err != nil {
		return authflow.TokenPair{}, err
	}
	return authflow.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

func (b *remoteBackend) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	token, err := b.client.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (b *remoteBackend) Probe(ctx context.Context, accessToken string) error {
	req, err := b.service.Probe(ctx, b.apiURL)
	if err != nil {
		return fmt.Errorf("building %s probe request: %w", b.service.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := b.client.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s probe: %w", b.service.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s probe: %w", b.service.Name, authflow.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s probe: unexpected status %d", b.service.Name, resp.StatusCode)
	}
	return nil
}
