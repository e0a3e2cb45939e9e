package authflow

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is reported by authenticated calls when the remote service
// rejects the access token (HTTP 401).
var ErrUnauthorized = errors.New("unauthorized")

// Handshake stages reported by AuthHandshakeError.
const (
	StageAuthorize = "authorize"
	StageExchange  = "exchange"
	StageRefresh   = "refresh"
)

// AuthHandshakeError reports a failed step of the authorization handshake.
// The flow is back in Idle when it is returned; callers may start over with
// Authenticate.
type AuthHandshakeError struct {
	Provider string
	Stage    string
	Err      error
}

func (e *AuthHandshakeError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Stage, e.Err)
}

func (e *AuthHandshakeError) Unwrap() error {
	return e.Err
}
