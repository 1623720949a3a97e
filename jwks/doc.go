// Package jwks holds the key material used to verify bearer tokens locally.
//
// A Cache owns at most one live KeySet per JWKS source URL. The KeySet is an
// immutable snapshot; a refresh builds a new one and installs it with an
// atomic swap, so verification never observes a half-built set. Refreshes are
// single-flighted: when many requests hit an expired snapshot or an unknown
// key id at once, exactly one fetch goes out and everyone waits on it.
package jwks
