package jwks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func documentJSON(t *testing.T, entries ...jwkEntry) []byte {
	t.Helper()
	data, err := json.Marshal(document{Keys: entries})
	require.NoError(t, err)
	return data
}

func Test_ParseKeySet(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("indexes every usable key by kid", func(t *testing.T) {
		rsaE, _ := rsaEntry(t, "k1")
		ecE, _ := ecEntry(t, "k2")

		ks, err := ParseKeySet(documentJSON(t, rsaE, ecE), "https://issuer/jwks.json", "https://issuer", DefaultTTL, now)
		require.NoError(t, err)

		assert.Equal(t, 2, ks.Len())
		k1, ok := ks.Key("k1")
		require.True(t, ok)
		assert.Equal(t, FamilyRSA, k1.Family)
		k2, ok := ks.Key("k2")
		require.True(t, ok)
		assert.Equal(t, FamilyEC, k2.Family)

		_, ok = ks.Key("unknown")
		assert.False(t, ok)
	})

	t.Run("drops unsupported entries but keeps the rest", func(t *testing.T) {
		rsaE, _ := rsaEntry(t, "good")
		ks, err := ParseKeySet(documentJSON(t, rsaE, jwkEntry{Kid: "sym", Kty: "oct"}), "u", "", DefaultTTL, now)
		require.NoError(t, err)
		assert.Equal(t, 1, ks.Len())
	})

	t.Run("errors when no entry is usable", func(t *testing.T) {
		_, err := ParseKeySet(documentJSON(t, jwkEntry{Kid: "sym", Kty: "oct"}), "u", "", DefaultTTL, now)
		assert.Error(t, err)
	})

	t.Run("errors on an empty or malformed document", func(t *testing.T) {
		_, err := ParseKeySet([]byte(`{"keys":[]}`), "u", "", DefaultTTL, now)
		assert.Error(t, err)

		_, err = ParseKeySet([]byte(`not json`), "u", "", DefaultTTL, now)
		assert.Error(t, err)
	})

	t.Run("tracks age and expiry against its TTL", func(t *testing.T) {
		rsaE, _ := rsaEntry(t, "k1")
		ks, err := ParseKeySet(documentJSON(t, rsaE), "u", "", 10*time.Minute, now)
		require.NoError(t, err)

		assert.False(t, ks.Expired(now.Add(9*time.Minute)))
		assert.True(t, ks.Expired(now.Add(11*time.Minute)))
		assert.Equal(t, 5*time.Minute, ks.Age(now.Add(5*time.Minute)))
	})
}
