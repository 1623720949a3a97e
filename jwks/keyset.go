package jwks

import (
	"encoding/json"
	"fmt"
	"time"
)

// KeySet is an immutable snapshot of every key known for one issuer at one
// point in time. Refreshes never modify a KeySet; they build a replacement.
type KeySet struct {
	SourceURL string
	Issuer    string
	FetchedAt time.Time
	TTL       time.Duration

	keys map[string]*SigningKey
}

// document mirrors the top level of a JWKS document.
type document struct {
	Keys []jwkEntry `json:"keys"`
}

// ParseKeySet decodes a raw JWKS document into a KeySet. Entries with an
// unsupported key type or malformed parameters are dropped; a document that
// yields no usable key at all is an error, since installing it would reject
// every token.
func ParseKeySet(data []byte, sourceURL, issuer string, ttl time.Duration, fetchedAt time.Time) (*KeySet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jwks: malformed document from %s: %w", sourceURL, err)
	}
	if len(doc.Keys) == 0 {
		return nil, fmt.Errorf("jwks: document from %s has no keys", sourceURL)
	}

	keys := make(map[string]*SigningKey, len(doc.Keys))
	var skipped []error
	for _, entry := range doc.Keys {
		key, err := parseEntry(entry)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		keys[key.KeyID] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks: document from %s has no usable keys: %v", sourceURL, skipped)
	}

	return &KeySet{
		SourceURL: sourceURL,
		Issuer:    issuer,
		FetchedAt: fetchedAt,
		TTL:       ttl,
		keys:      keys,
	}, nil
}

// Key looks up a verification key by its kid.
func (s *KeySet) Key(kid string) (*SigningKey, bool) {
	k, ok := s.keys[kid]
	return k, ok
}

// Len reports how many usable keys the snapshot holds.
func (s *KeySet) Len() int {
	return len(s.keys)
}

// Age reports how long ago the snapshot was fetched.
func (s *KeySet) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// Expired reports whether the snapshot is past its TTL.
func (s *KeySet) Expired(now time.Time) bool {
	return s.Age(now) > s.TTL
}
