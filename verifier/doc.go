// Package verifier performs local, offline verification of bearer tokens
// against a key set snapshot. It does no network I/O of its own; the only
// thing that may touch the network is the KeySource refreshing key material
// behind it. Every failure is a typed sentinel so the request handler can
// tell a forged token from an unavailable issuer.
package verifier
