// Package tokensource talks to OAuth2 authorization servers on behalf of a
// public client using the authorization code flow with PKCE.
//
// # Usage
//
//	client := tokensource.New(&oauth2.Config{ClientID: id, Endpoint: endpoint})
//	authURL := client.AuthorizationURL(redirectURI, verifier)
//	// ... user returns with ?code=...
//	token, err := client.ExchangeCode(ctx, redirectURI, code, verifier)
//	accessToken, err := client.RefreshAccessToken(ctx, token.RefreshToken)
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or custom timeouts):
//
//	client := tokensource.New(cfg, tokensource.WithTransport(customTransport))
package tokensource
