// Package authgate implements the forward-auth decision point sitting
// between a reverse proxy and the backends it guards. Every proxied request
// is first sent here. The gateway verifies the caller's bearer token,
// offline against cached JWKS key material whenever possible and directly
// against the identity provider only when local verification cannot
// proceed, then resolves the subject's tenant context and answers with the
// identity header contract the proxy copies onto the forwarded request.
//
// The subpackages map onto the pipeline stages:
//
//	jwks      key material model and the rotation-aware key set cache
//	verifier  offline signature and claim verification
//	fallback  bounded network validation against the identity provider
//	tenant    subject → tenant/roles/permissions enrichment
//	config    environment configuration, failing closed when incomplete
//
// See cmd/authgate for the deployable service.
package authgate
