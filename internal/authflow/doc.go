// Package authflow implements the OAuth2 authorization-code-with-PKCE state
// machine shared by remote storage providers.
//
// A handshake spans a full round trip through the user's browser, so it is
// split into two entry points connected only through persisted state:
//
//   - Authenticate generates a code verifier, stores it in session storage and
//     navigates to the authorization URL.
//   - HandleAuthCallback inspects the current URL. With an authorization code it
//     exchanges code and verifier for a token pair and persists both tokens in
//     durable storage. Without one it resumes from stored tokens and validates
//     them with a single probe call.
//
// HandleAuthCallback is safe to call at any time; when there is nothing to
// resume it returns without touching storage.
//
// # Token refresh
//
// Call runs an authenticated request. If the request reports ErrUnauthorized
// the refresh token is spent once, the request retried once, and the new
// access token persisted. A second unauthorized response propagates to the
// caller and drops the flow back to Idle; stored tokens are left in place.
package authflow
