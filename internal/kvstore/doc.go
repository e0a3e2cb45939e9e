// Package kvstore provides flat string-keyed storage backends and the prefixed
// view used to partition one backend into isolated namespaces.
//
// Supports four backends with different durability and deployment tradeoffs:
//   - Memory: process-scoped, lost on exit (used for session state such as PKCE verifiers)
//   - File: a JSON document on the local filesystem with atomic writes and secure permissions
//   - SQLite: a single-table database, suitable for larger caches
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Auth tokens should live in the keyring or a file; cached data can use any backend.
package kvstore
