package authgate

import (
	"net/http"
	"strings"
)

// TokenExtractor pulls a raw bearer token out of an inbound request. An
// empty string with a nil error means no credential was presented at all;
// an error means a credential was presented but unusably formed. The
// gateway treats both as terminal MissingToken outcomes, per the proxy
// contract.
type TokenExtractor func(r *http.Request) (string, error)

// AuthHeaderTokenExtractor reads the standard `Authorization: Bearer <token>`
// header.
func AuthHeaderTokenExtractor(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil // No credential, not an error.
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}

	return parts[1], nil
}

// CookieTokenExtractor builds a TokenExtractor reading the token from the
// named cookie. Some proxies strip Authorization headers on WebSocket
// upgrades and deliver the credential as a cookie instead.
func CookieTokenExtractor(cookieName string) TokenExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(cookieName)
		if err == http.ErrNoCookie {
			return "", nil
		}
		return cookie.Value, nil
	}
}

// MultiTokenExtractor tries each extractor in order and returns the first
// token found. An extractor error stops the chain immediately.
func MultiTokenExtractor(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) (string, error) {
		for _, ex := range extractors {
			token, err := ex(r)
			if err != nil {
				return "", err
			}
			if token != "" {
				return token, nil
			}
		}
		return "", nil
	}
}
