package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestObject(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	_, err := NewRequestObject(nil)
	assert.True(IsKind(err, KindConfiguration))
	assert.ErrorIs(err, ErrNilParameter)

	_, err = NewRequestObjectFromJSON(`["not", "an", "object"]`)
	assert.True(IsKind(err, KindConfiguration))
	assert.ErrorIs(err, ErrInvalidParameter)

	ro, err := NewRequestObjectFromJSON(`{"userinfo":{"email_verified":{"essential":true}}}`)
	require.NoError(err)
	claims := ro.Claims()
	assert.Equal(essentialVerified()["userinfo"].(map[string]interface{})["email_verified"], claims["userinfo"].(map[string]interface{})["email_verified"])

	// callers can't mutate the request object through Claims
	claims["userinfo"] = "changed"
	assert.IsType(map[string]interface{}{}, ro.Claims()["userinfo"])
}

func TestRequestObject_encode(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	cfg, _ := testConfigWithProviderKey(t)
	now := time.Unix(1700000000, 0)

	ro, err := NewRequestObject(essentialVerified())
	require.NoError(err)
	enc, err := ro.encode(ctx, &requestEnv{cfg: cfg, acr: "2", maxAge: 7200, now: now})
	require.NoError(err)
	assert.Equal(paramRequest, enc.param)
	assert.Empty(enc.requestURI)
	assert.Equal(KnownClaims{Claims: essentialVerified()}, enc.requested)

	cs, err := cfg.SigningKey.KeySet().VerifySignature(ctx, enc.value)
	require.NoError(err)
	assert.Equal(cfg.ClientID, cs["iss"])
	assert.Equal(cfg.Provider.Issuer, cs["aud"])
	assert.Equal(cfg.ClientID, cs["client_id"])
	assert.Equal("code", cs["response_type"])
	assert.Equal("openid", cs["scope"])
	assert.Equal(cfg.RedirectURL, cs["redirect_uri"])
	assert.Equal("2", cs["acr_values"])
	assert.Equal(float64(7200), cs["max_age"])
	assert.Equal(float64(now.Unix()), cs["iat"])
	assert.NotEmpty(cs["jti"])
	assert.Equal(essentialVerified(), cs["claims"])

	// max_age is left out when not configured
	enc, err = ro.encode(ctx, &requestEnv{cfg: cfg, acr: DefaultACR, now: now})
	require.NoError(err)
	cs, err = cfg.SigningKey.KeySet().VerifySignature(ctx, enc.value)
	require.NoError(err)
	_, ok := cs["max_age"]
	assert.False(ok)
}

func TestRequestObjectJWT_encode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg, _ := testConfigWithProviderKey(t)
	env := &requestEnv{cfg: cfg, acr: DefaultACR, now: time.Now()}

	signed, err := cfg.SigningKey.Sign(map[string]interface{}{"claims": essentialVerified()})
	require.NoError(t, err)
	noClaims, err := cfg.SigningKey.Sign(map[string]interface{}{"iss": cfg.ClientID})
	require.NoError(t, err)
	badClaims, err := cfg.SigningKey.Sign(map[string]interface{}{"claims": "everything"})
	require.NoError(t, err)
	forged, err := TestGeneratePrivateKey(t).Sign(map[string]interface{}{"claims": essentialVerified()})
	require.NoError(t, err)
	encrypted := TestEncryptJWE(t, TestGeneratePrivateKey(t).Public(), signed)

	tests := []struct {
		name        string
		jwt         string
		want        RequestedClaims
		wantErrKind Kind
		wantIsErr   error
	}{
		{name: "signed", jwt: signed, want: KnownClaims{Claims: essentialVerified()}},
		{name: "signed-without-claims", jwt: noClaims, want: KnownClaims{Claims: map[string]interface{}{}}},
		{name: "encrypted", jwt: encrypted, want: EncryptedClaims{}},
		{name: "claims-not-object", jwt: badClaims, wantErrKind: KindProtocol, wantIsErr: ErrMalformedToken},
		{name: "forged", jwt: forged, wantErrKind: KindCrypto, wantIsErr: ErrInvalidSignature},
		{name: "empty", jwt: "", wantErrKind: KindConfiguration, wantIsErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			enc, err := RequestObjectJWT{JWT: tt.jwt}.encode(ctx, env)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.True(IsKind(err, tt.wantErrKind))
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(paramRequest, enc.param)
			assert.Equal(tt.jwt, enc.value)
			assert.Equal(tt.want, enc.requested)
		})
	}
}

func TestRequestURI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg, _ := testConfigWithProviderKey(t)

	t.Run("encode", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		enc, err := RequestURI{URI: "https://rp.example.com/request"}.encode(ctx, &requestEnv{cfg: cfg})
		require.NoError(err)
		assert.Equal(paramRequestURI, enc.param)
		assert.Equal("https://rp.example.com/request", enc.value)
		assert.Equal("https://rp.example.com/request", enc.requestURI)
		assert.Nil(enc.requested)

		_, err = RequestURI{URI: "not a uri"}.encode(ctx, &requestEnv{cfg: cfg})
		assert.True(IsKind(err, KindConfiguration))
	})
	t.Run("claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		signed, err := cfg.SigningKey.Sign(map[string]interface{}{"claims": essentialVerified()})
		require.NoError(err)
		f := &testFetcher{objects: map[string]string{"https://rp.example.com/request": signed}}

		got, err := RequestURI{URI: "https://rp.example.com/request"}.Claims(ctx, f, cfg.SigningKey.KeySet())
		require.NoError(err)
		assert.Equal(KnownClaims{Claims: essentialVerified()}, got)

		_, err = RequestURI{URI: "https://rp.example.com/request"}.Claims(ctx, nil, cfg.SigningKey.KeySet())
		assert.ErrorIs(err, ErrNilParameter)
	})
}
