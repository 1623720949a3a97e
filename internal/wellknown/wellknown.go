// Package wellknown repairs and derives JWKS discovery URLs.
package wellknown

import (
	"fmt"
	"net/url"
	"strings"
)

const segment = ".well-known"

// NormalizeJWKSURL validates a configured JWKS URL and repairs the one
// malformation that keeps showing up in issuer configuration: the well-known
// segment glued to the previous path element without its leading slash
// (".../auth/v1.well-known/jwks.json"). Operators should not need byte-perfect
// URLs for the gateway to come up.
func NormalizeJWKSURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("wellknown: invalid JWKS URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("wellknown: JWKS URL %q must be http or https", raw)
	}

	if i := strings.Index(u.Path, segment); i > 0 && u.Path[i-1] != '/' {
		u.Path = u.Path[:i] + "/" + u.Path[i:]
	}

	return u.String(), nil
}
