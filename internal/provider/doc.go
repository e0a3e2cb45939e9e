// Package provider defines the contract every storage backend provider
// implements and the registry that activates them.
//
// A provider is described by a Type: a name and a factory. The registry keeps
// the set of known types and at most one active instance. The local cache
// assumes a single authoritative remote, so activating a second provider
// while one is active fails with ErrMultipleProviders.
package provider
