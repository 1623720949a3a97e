package wellknown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NormalizeJWKSURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "well formed URL passes through",
			in:   "https://proj.supabase.co/auth/v1/.well-known/jwks.json",
			want: "https://proj.supabase.co/auth/v1/.well-known/jwks.json",
		},
		{
			name: "missing slash before well-known is repaired",
			in:   "https://proj.supabase.co/auth/v1.well-known/jwks.json",
			want: "https://proj.supabase.co/auth/v1/.well-known/jwks.json",
		},
		{
			name: "non well-known URL is untouched",
			in:   "https://issuer.example.com/keys",
			want: "https://issuer.example.com/keys",
		},
		{
			name: "query and port are preserved",
			in:   "http://localhost:9999/auth/v1.well-known/jwks.json?x=1",
			want: "http://localhost:9999/auth/v1/.well-known/jwks.json?x=1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeJWKSURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("rejects non-http schemes and garbage", func(t *testing.T) {
		_, err := NormalizeJWKSURL("ftp://host/jwks.json")
		assert.Error(t, err)

		_, err = NormalizeJWKSURL("://")
		assert.Error(t, err)
	})
}
