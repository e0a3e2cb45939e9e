// Package providers contains the built-in storage providers: Dropbox and
// Google Drive, both authorized through OAuth2 with PKCE, and a local
// directory that needs no authorization.
package providers
