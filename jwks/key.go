package jwks

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Family identifies the algorithm family a verification key belongs to.
// A token is only ever verified with the routine matching the family of the
// key its kid resolved to, never with the routine its own header asks for.
type Family string

const (
	// FamilyRSA covers RS256/RS384/RS512 and the PS variants.
	FamilyRSA = Family("RSA")
	// FamilyEC covers ES256/ES384/ES512.
	FamilyEC = Family("EC")
)

// ErrUnsupportedKeyType is returned when a JWKS entry carries a key type
// other than RSA or EC. Symmetric (oct) and OKP entries are never usable
// for this gateway and are dropped at parse time.
var ErrUnsupportedKeyType = fmt.Errorf("jwks: unsupported key type")

// SigningKey is a single verification key from a JWKS document. It is built
// once during parsing and never mutated; the crypto key object is constructed
// eagerly so the verification hot path does no decoding.
type SigningKey struct {
	KeyID  string
	Family Family

	rsaKey *rsa.PublicKey
	ecKey  *ecdsa.PublicKey
}

// PublicKey returns the decoded public key for signature verification.
func (k *SigningKey) PublicKey() crypto.PublicKey {
	switch k.Family {
	case FamilyRSA:
		return k.rsaKey
	case FamilyEC:
		return k.ecKey
	}
	return nil
}

// jwkEntry mirrors one element of the "keys" array of a JWKS document.
// All numeric fields are base64url-encoded per RFC 7517/7518.
type jwkEntry struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`

	// RSA parameters.
	N string `json:"n"`
	E string `json:"e"`

	// EC parameters.
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// parseEntry converts a raw JWKS entry into a SigningKey.
func parseEntry(e jwkEntry) (*SigningKey, error) {
	if e.Kid == "" {
		return nil, fmt.Errorf("jwks: key entry has no kid")
	}
	if e.Use != "" && e.Use != "sig" {
		return nil, fmt.Errorf("jwks: key %q is not a signature key (use=%q)", e.Kid, e.Use)
	}

	switch e.Kty {
	case "RSA":
		pub, err := parseRSA(e)
		if err != nil {
			return nil, err
		}
		return &SigningKey{KeyID: e.Kid, Family: FamilyRSA, rsaKey: pub}, nil
	case "EC":
		pub, err := parseEC(e)
		if err != nil {
			return nil, err
		}
		return &SigningKey{KeyID: e.Kid, Family: FamilyEC, ecKey: pub}, nil
	default:
		return nil, fmt.Errorf("%w: kty %q (kid %q)", ErrUnsupportedKeyType, e.Kty, e.Kid)
	}
}

func parseRSA(e jwkEntry) (*rsa.PublicKey, error) {
	if e.N == "" || e.E == "" {
		return nil, fmt.Errorf("jwks: RSA key %q is missing modulus or exponent", e.Kid)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(e.N)
	if err != nil {
		return nil, fmt.Errorf("jwks: RSA key %q has invalid modulus: %w", e.Kid, err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e.E)
	if err != nil {
		return nil, fmt.Errorf("jwks: RSA key %q has invalid exponent: %w", e.Kid, err)
	}

	exponent := new(big.Int).SetBytes(eBytes)
	if !exponent.IsInt64() || exponent.Int64() <= 0 {
		return nil, fmt.Errorf("jwks: RSA key %q has out-of-range exponent", e.Kid)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(exponent.Int64()),
	}, nil
}

func parseEC(e jwkEntry) (*ecdsa.PublicKey, error) {
	if e.Crv == "" || e.X == "" || e.Y == "" {
		return nil, fmt.Errorf("jwks: EC key %q is missing curve or coordinates", e.Kid)
	}

	var curve elliptic.Curve
	switch e.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("jwks: EC key %q uses unsupported curve %q", e.Kid, e.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(e.X)
	if err != nil {
		return nil, fmt.Errorf("jwks: EC key %q has invalid x coordinate: %w", e.Kid, err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(e.Y)
	if err != nil {
		return nil, fmt.Errorf("jwks: EC key %q has invalid y coordinate: %w", e.Kid, err)
	}

	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("jwks: EC key %q coordinates are not on curve %s", e.Kid, e.Crv)
	}

	return pub, nil
}
