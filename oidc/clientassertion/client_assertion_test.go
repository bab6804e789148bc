package clientassertion

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/idtrust/rpflow/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 32 bytes for HS256

func testKey(t *testing.T) *jwt.PrivateKey {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	k, err := jwt.NewPrivateKey(rsaKey, jwt.WithKeyID("rp-key-1"))
	require.NoError(t, err)
	return k
}

func TestNewJWTWithKey(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	aud := []string{"https://idp.example.com/token"}

	tests := []struct {
		name       string
		clientID   string
		aud        []string
		key        *jwt.PrivateKey
		opt        []Option
		wantIsErrs []error
	}{
		{name: "valid", clientID: "rp", aud: aud, key: key},
		{name: "missing-everything", wantIsErrs: []error{ErrMissingClientID, ErrMissingAudience, ErrMissingKeyOrSecret}},
		{name: "bad-lifetime", clientID: "rp", aud: aud, key: key, opt: []Option{WithLifetime(0)}, wantIsErrs: []error{ErrInvalidLifetime}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewJWTWithKey(tt.clientID, tt.aud, tt.key, tt.opt...)
			if len(tt.wantIsErrs) > 0 {
				require.Error(err)
				assert.Nil(got)
				for _, want := range tt.wantIsErrs {
					assert.ErrorIs(err, want)
				}
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestNewJWTWithHMAC(t *testing.T) {
	t.Parallel()
	aud := []string{"https://idp.example.com/token"}

	tests := []struct {
		name      string
		alg       HSAlgorithm
		secret    string
		wantIsErr error
	}{
		{name: "hs256", alg: HS256, secret: testSecret},
		{name: "hs512", alg: HS512, secret: strings.Repeat("a", 64)},
		{name: "short-secret", alg: HS384, secret: testSecret, wantIsErr: ErrInvalidSecretLength},
		{name: "unsupported-alg", alg: "RS256", secret: testSecret, wantIsErr: ErrUnsupportedAlgorithm},
		{name: "missing-secret", alg: HS256, wantIsErr: ErrMissingKeyOrSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewJWTWithHMAC("rp", aud, tt.alg, tt.secret)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestJWT_Serialize(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	aud := []string{"https://idp.example.com/token"}

	t.Run("private-key-jwt", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		key := testKey(t)
		j, err := NewJWTWithKey("rp", aud, key, WithNow(func() time.Time { return now }))
		require.NoError(err)

		first, err := j.Serialize()
		require.NoError(err)
		second, err := j.Serialize()
		require.NoError(err)
		assert.NotEqual(first, second, "every assertion has its own jti")

		claims, err := key.KeySet().VerifySignature(context.Background(), first)
		require.NoError(err)
		assert.Equal("rp", claims["iss"])
		assert.Equal("rp", claims["sub"])
		assert.Equal("https://idp.example.com/token", claims["aud"])
		assert.Equal(float64(now.Add(DefaultLifetime).Unix()), claims["exp"])
		assert.Equal(float64(now.Unix()), claims["iat"])
		assert.NotEmpty(claims["jti"])

		tok, err := jose.ParseSigned(first, []jose.SignatureAlgorithm{jose.RS256})
		require.NoError(err)
		assert.Equal("rp-key-1", tok.Signatures[0].Header.KeyID)
	})

	t.Run("client-secret-jwt", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		j, err := NewJWTWithHMAC("rp", aud, HS256, testSecret, WithKeyID("secret-1"), WithLifetime(time.Minute), WithNow(func() time.Time { return now }))
		require.NoError(err)
		signed, err := j.Serialize()
		require.NoError(err)

		tok, err := josejwt.ParseSigned(signed, []jose.SignatureAlgorithm{jose.HS256})
		require.NoError(err)
		assert.Equal("secret-1", tok.Headers[0].KeyID)
		var claims josejwt.Claims
		require.NoError(tok.Claims([]byte(testSecret), &claims))
		assert.Equal("rp", claims.Issuer)
		assert.Equal(josejwt.Audience(aud), claims.Audience)
		assert.Equal(now.Add(time.Minute).Unix(), claims.Expiry.Time().Unix())
	})

	t.Run("id-generation-fails", func(t *testing.T) {
		j, err := NewJWTWithHMAC("rp", aud, HS256, testSecret)
		require.NoError(t, err)
		j.genID = func() (string, error) { return "", errors.New("no entropy") }
		_, err = j.Serialize()
		assert.Error(t, err)
	})
}
