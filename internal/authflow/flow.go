package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/oauth2"

	"github.com/florianilch/decentstore/internal/kvstore"
)

// Storage keys, relative to the session and auth namespaces.
const (
	codeVerifierKey = "codeVerifier"
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
)

// TokenPair is the result of a successful code exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Backend is the remote authorization server and API of one provider.
type Backend interface {
	// AuthorizationURL returns the URL the user is sent to, with the S256
	// challenge derived from verifier.
	AuthorizationURL(ctx context.Context, redirectURI, verifier string) (string, error)

	// ExchangeCode trades an authorization code and its verifier for tokens.
	ExchangeCode(ctx context.Context, redirectURI, code, verifier string) (TokenPair, error)

	// RefreshAccessToken mints a new access token from a refresh token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)

	// Probe performs one representative authenticated API call. It must
	// report a rejected access token as ErrUnauthorized.
	Probe(ctx context.Context, accessToken string) error
}

// Environment is where the handshake is driven from: the callback endpoint
// the authorization server redirects back to.
type Environment interface {
	// CurrentURL returns the URL currently being handled, including any
	// callback query parameters.
	CurrentURL() *url.URL

	// ReplaceURL swaps the visible URL without navigating.
	ReplaceURL(u *url.URL)

	// Navigate sends the user to target.
	Navigate(ctx context.Context, target string) error
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger used for handshake diagnostics.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// Flow drives the PKCE handshake and token lifecycle of one provider instance.
type Flow struct {
	name    string
	backend Backend
	env     Environment
	session *kvstore.Prefixed
	durable *kvstore.Prefixed
	logger  *slog.Logger

	// mu serializes handshakes and refreshes.
	mu           sync.Mutex
	state        State
	accessToken  string
	refreshToken string
}

// New creates a Flow for the provider called name. Session state is kept in
// session, tokens in durable.
func New(name string, backend Backend, env Environment, session, durable *kvstore.Prefixed, opts ...Option) (*Flow, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if backend == nil {
		return nil, fmt.Errorf("missing backend")
	}
	if env == nil {
		return nil, fmt.Errorf("missing environment")
	}
	if session == nil || durable == nil {
		return nil, fmt.Errorf("missing session or auth store")
	}

	f := &Flow{
		name:    name,
		backend: backend,
		env:     env,
		session: session,
		durable: durable,
		logger:  slog.Default(),
		state:   Idle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// State returns the current handshake state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Authenticated reports whether the flow holds a usable access token.
func (f *Flow) Authenticated() bool {
	return f.State() == Authenticated
}

// Authenticate starts a handshake: it stores a fresh code verifier in session
// storage and navigates to the authorization URL. A pending verifier from an
// abandoned handshake is overwritten.
func (f *Flow) Authenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	verifier := oauth2.GenerateVerifier()
	redirectURI := f.redirectURI()

	authURL, err := f.backend.AuthorizationURL(ctx, redirectURI, verifier)
	if err != nil {
		f.logger.ErrorContext(ctx, "failed to build authorization URL", "provider", f.name, "error", err)
		f.state = Idle
		return &AuthHandshakeError{Provider: f.name, Stage: StageAuthorize, Err: err}
	}

	if err := f.session.Set(ctx, f.key(codeVerifierKey), verifier); err != nil {
		f.state = Idle
		return fmt.Errorf("storing code verifier: %w", err)
	}
	f.state = AwaitingRedirect

	f.logger.InfoContext(ctx, "redirecting to authorization server", "provider", f.name, "redirect_uri", redirectURI)
	if err := f.env.Navigate(ctx, authURL); err != nil {
		return fmt.Errorf("navigating to authorization URL: %w", err)
	}
	return nil
}

// HandleAuthCallback completes a pending handshake when the current URL
// carries an authorization code, or resumes from stored tokens otherwise.
// Having nothing to resume is not an error.
func (f *Flow) HandleAuthCallback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.env.CurrentURL()
	var query url.Values
	if current != nil {
		query = current.Query()
	}

	if code := query.Get("code"); code != "" {
		return f.exchange(ctx, code)
	}

	if authErr := query.Get("error"); authErr != "" {
		f.env.ReplaceURL(stripQuery(current))
		err := fmt.Errorf("%s: %s", authErr, query.Get("error_description"))
		f.logger.ErrorContext(ctx, "authorization was denied", "provider", f.name, "error", err)
		f.state = Idle
		return &AuthHandshakeError{Provider: f.name, Stage: StageAuthorize, Err: err}
	}

	accessToken, ok, err := f.durable.Get(ctx, f.key(accessTokenKey))
	if err != nil {
		return fmt.Errorf("reading access token: %w", err)
	}
	if !ok || accessToken == "" {
		f.state = Idle
		return nil
	}

	refreshToken, _, err := f.durable.Get(ctx, f.key(refreshTokenKey))
	if err != nil {
		return fmt.Errorf("reading refresh token: %w", err)
	}

	f.accessToken = accessToken
	f.refreshToken = refreshToken
	f.state = Authenticated

	return f.call(ctx, f.backend.Probe)
}

// Call runs fn with the current access token. An ErrUnauthorized result
// triggers at most one refresh and one retry per stored refresh token.
func (f *Flow) Call(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Authenticated {
		return fmt.Errorf("%s: not authenticated: %w", f.name, ErrUnauthorized)
	}
	return f.call(ctx, fn)
}

// exchange trades the callback code for tokens. Caller holds f.mu.
func (f *Flow) exchange(ctx context.Context, code string) error {
	current := f.env.CurrentURL()
	redirectURI := stripQuery(current)
	// The code is single-use; never leave it visible, whatever happens next.
	f.env.ReplaceURL(redirectURI)

	verifier, ok, err := f.session.Get(ctx, f.key(codeVerifierKey))
	if err != nil {
		return fmt.Errorf("reading code verifier: %w", err)
	}
	if !ok || verifier == "" {
		f.logger.DebugContext(ctx, "ignoring callback without pending handshake", "provider", f.name)
		f.state = Idle
		return nil
	}

	f.state = ExchangingCode
	pair, err := f.backend.ExchangeCode(ctx, redirectURI.String(), code, verifier)
	if err != nil {
		f.logger.ErrorContext(ctx, "failed to exchange authorization code", "provider", f.name, "error", err)
		f.state = Idle
		return &AuthHandshakeError{Provider: f.name, Stage: StageExchange, Err: err}
	}

	if err := f.durable.Set(ctx, f.key(accessTokenKey), pair.AccessToken); err != nil {
		f.state = Idle
		return fmt.Errorf("storing access token: %w", err)
	}
	if err := f.durable.Set(ctx, f.key(refreshTokenKey), pair.RefreshToken); err != nil {
		f.state = Idle
		return fmt.Errorf("storing refresh token: %w", err)
	}
	// Only drop the verifier once both tokens are persisted.
	if err := f.session.Remove(ctx, f.key(codeVerifierKey)); err != nil {
		f.state = Idle
		return fmt.Errorf("removing code verifier: %w", err)
	}

	f.accessToken = pair.AccessToken
	f.refreshToken = pair.RefreshToken
	f.state = Authenticated
	f.logger.InfoContext(ctx, "authenticated", "provider", f.name)
	return nil
}

// call is Call without locking. Caller holds f.mu.
func (f *Flow) call(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	err := fn(ctx, f.accessToken)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if f.refreshToken == "" {
		f.state = Idle
		return fmt.Errorf("%s: access token rejected and no refresh token available: %w", f.name, err)
	}

	f.state = RefreshingToken
	accessToken, rerr := f.backend.RefreshAccessToken(ctx, f.refreshToken)
	if rerr != nil {
		f.logger.ErrorContext(ctx, "failed to refresh access token", "provider", f.name, "error", rerr)
		f.state = Idle
		return &AuthHandshakeError{Provider: f.name, Stage: StageRefresh, Err: rerr}
	}
	f.accessToken = accessToken

	if err := fn(ctx, accessToken); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			f.state = Idle
			return fmt.Errorf("%s: access token rejected after refresh: %w", f.name, err)
		}
		f.state = Authenticated
		return err
	}

	if err := f.durable.Set(ctx, f.key(accessTokenKey), accessToken); err != nil {
		f.state = Authenticated
		return fmt.Errorf("storing refreshed access token: %w", err)
	}
	f.refreshToken = ""
	f.state = Authenticated
	f.logger.InfoContext(ctx, "access token has been refreshed", "provider", f.name)
	return nil
}

// redirectURI is the current callback endpoint without query parameters.
func (f *Flow) redirectURI() string {
	return stripQuery(f.env.CurrentURL()).String()
}

func (f *Flow) key(name string) string {
	return f.name + "." + name
}

// stripQuery returns a copy of u without query and fragment.
func stripQuery(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	stripped := *u
	stripped.RawQuery = ""
	stripped.ForceQuery = false
	stripped.Fragment = ""
	stripped.RawFragment = ""
	return &stripped
}
