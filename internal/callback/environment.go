package callback

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"

	"github.com/pkg/browser"
	"golang.org/x/term"

	"github.com/florianilch/decentstore/internal/authflow"
)

// Environment is the authflow.Environment of a command-line process: the
// current URL is the redirect URL plus the query of the last callback, and
// navigation opens the system browser.
type Environment struct {
	mu       sync.Mutex
	redirect *url.URL
	current  *url.URL

	out         io.Writer
	open        func(string) error
	interactive bool
}

// Compile-time check to ensure Environment can drive auth flows
var _ authflow.Environment = (*Environment)(nil)

// EnvironmentOption configures an Environment.
type EnvironmentOption func(*Environment)

// WithOutput sets where navigation targets are printed. Defaults to os.Stderr.
func WithOutput(w io.Writer) EnvironmentOption {
	return func(e *Environment) {
		e.out = w
	}
}

// WithOpener replaces the system browser, mainly for tests.
func WithOpener(open func(string) error) EnvironmentOption {
	return func(e *Environment) {
		e.open = open
		e.interactive = true
	}
}

// NewEnvironment creates an Environment whose redirect URL is redirect.
func NewEnvironment(redirect string, opts ...EnvironmentOption) (*Environment, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("redirect URL must be absolute: %q", redirect)
	}
	u.RawQuery = ""
	u.Fragment = ""

	e := &Environment{
		redirect:    u,
		current:     u,
		out:         os.Stderr,
		open:        browser.OpenURL,
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RedirectURL returns the URL the callback server listens on.
func (e *Environment) RedirectURL() *url.URL {
	u := *e.redirect
	return &u
}

func (e *Environment) CurrentURL() *url.URL {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := *e.current
	return &u
}

func (e *Environment) ReplaceURL(u *url.URL) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := *u
	e.current = &c
}

// Navigate prints target and, on an interactive terminal, opens it in the browser.
// A browser that fails to start is not an error; the printed URL still works.
func (e *Environment) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.out, "Open the following URL to authorize access:\n\n  %s\n\n", target); err != nil {
		return err
	}
	if !e.interactive {
		return nil
	}
	if err := e.open(target); err != nil {
		_, _ = fmt.Fprintf(e.out, "Could not open browser: %v\n", err)
	}
	return nil
}

// receive records the query of an incoming callback on top of the redirect URL.
func (e *Environment) receive(query url.Values) {
	u := e.RedirectURL()
	u.RawQuery = query.Encode()
	e.ReplaceURL(u)
}
