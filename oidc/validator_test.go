package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://idp.example.com"
	testClientID = "test-rp"
)

func testIDTokenClaims(issuer, aud, sub string) josejwt.Claims {
	now := time.Now()
	return josejwt.Claims{
		Issuer:   issuer,
		Audience: josejwt.Audience{aud},
		Subject:  sub,
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
}

// testConfigWithProviderKey returns a Config whose provider verifies with a
// static public key, and the PEM private half of that key.
func testConfigWithProviderKey(t *testing.T) (*Config, string) {
	t.Helper()
	pub, priv := TestGenerateKeys(t)
	pc, err := NewProviderConfig(testIssuer, testIssuer+"/authorize", testIssuer+"/token", testIssuer+"/userinfo", WithProviderPublicKeys(pub))
	require.NoError(t, err)
	cfg, err := NewConfig(testClientID, "secret", "https://rp.example.com/callback", pc, WithSigningKey(TestGeneratePrivateKey(t)))
	require.NoError(t, err)
	return cfg, priv
}

func testTokenValidator(t *testing.T, cfg *Config, opt ...Option) *TokenValidator {
	t.Helper()
	ks, err := cfg.Provider.KeySet(context.Background(), "")
	require.NoError(t, err)
	v, err := NewTokenValidator(cfg, ks, opt...)
	require.NoError(t, err)
	return v
}

func TestNewTokenValidator(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfigWithProviderKey(t)

	_, err := NewTokenValidator(cfg, nil)
	assert.True(t, IsKind(err, KindConfiguration))
	assert.ErrorIs(t, err, ErrNilParameter)

	_, err = NewTokenValidator(nil, cfg.SigningKey.KeySet())
	assert.True(t, IsKind(err, KindConfiguration))
}

func TestTokenValidator_ValidateIDToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg, provPriv := testConfigWithProviderKey(t)
	_, otherPriv := TestGenerateKeys(t)
	v := testTokenValidator(t, cfg)
	now := time.Now()

	valid := func() josejwt.Claims { return testIDTokenClaims(testIssuer, testClientID, "user-42") }

	tests := []struct {
		name                string
		token               func() string
		serverTime          time.Time
		storedNonce         string
		externallyInitiated bool
		wantErrKind         Kind
		wantIsErr           error
	}{
		{
			name:        "valid",
			token:       func() string { return TestSignJWT(t, provPriv, valid(), map[string]interface{}{"nonce": "n_1"}) },
			storedNonce: "n_1",
		},
		{
			name:                "valid-externally-initiated-no-nonce",
			token:               func() string { return TestSignJWT(t, provPriv, valid(), nil) },
			externallyInitiated: true,
		},
		{
			name:        "wrong-key",
			token:       func() string { return TestSignJWT(t, otherPriv, valid(), map[string]interface{}{"nonce": "n_1"}) },
			storedNonce: "n_1",
			wantErrKind: KindCrypto,
			wantIsErr:   ErrInvalidSignature,
		},
		{
			name: "unsupported-alg",
			token: func() string {
				sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")}, nil)
				require.NoError(t, err)
				tk, err := josejwt.Signed(sig).Claims(valid()).Serialize()
				require.NoError(t, err)
				return tk
			},
			wantErrKind: KindProtocol,
			wantIsErr:   ErrMalformedToken,
		},
		{
			name:        "not-a-jwt",
			token:       func() string { return "not.a.jwt" },
			wantErrKind: KindProtocol,
			wantIsErr:   ErrMalformedToken,
		},
		{
			name: "wrong-issuer",
			token: func() string {
				return TestSignJWT(t, provPriv, testIDTokenClaims("https://evil.example.com", testClientID, "user-42"), map[string]interface{}{"nonce": "n_1"})
			},
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidIssuer,
		},
		{
			name: "wrong-audience",
			token: func() string {
				return TestSignJWT(t, provPriv, testIDTokenClaims(testIssuer, "someone-else", "user-42"), map[string]interface{}{"nonce": "n_1"})
			},
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidAudience,
		},
		{
			name:        "expired-at-server-time",
			token:       func() string { return TestSignJWT(t, provPriv, valid(), map[string]interface{}{"nonce": "n_1"}) },
			serverTime:  now.Add(time.Hour),
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrExpiredToken,
		},
		{
			name:        "issued-after-server-time",
			token:       func() string { return TestSignJWT(t, provPriv, valid(), map[string]interface{}{"nonce": "n_1"}) },
			serverTime:  now.Add(-time.Hour),
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidIssuedAt,
		},
		{
			name: "missing-exp",
			token: func() string {
				c := valid()
				c.Expiry = nil
				return TestSignJWT(t, provPriv, c, map[string]interface{}{"nonce": "n_1"})
			},
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrExpiredToken,
		},
		{
			name: "missing-sub",
			token: func() string {
				return TestSignJWT(t, provPriv, testIDTokenClaims(testIssuer, testClientID, ""), map[string]interface{}{"nonce": "n_1"})
			},
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrMissingSubject,
		},
		{
			name:        "nonce-mismatch",
			token:       func() string { return TestSignJWT(t, provPriv, valid(), map[string]interface{}{"nonce": "n_replayed"}) },
			storedNonce: "n_1",
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidNonce,
		},
		{
			name:        "nonce-not-issued",
			token:       func() string { return TestSignJWT(t, provPriv, valid(), map[string]interface{}{"nonce": "n_1"}) },
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidNonce,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			s := newTestStore()
			if tt.storedNonce != "" {
				s.data[storeKeyNonce] = tt.storedNonce
			}
			serverTime := tt.serverTime
			if serverTime.IsZero() {
				serverTime = now
			}
			got, err := v.ValidateIDToken(ctx, s, tt.token(), serverTime, tt.externallyInitiated)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(IsKind(err, tt.wantErrKind), "wanted %s, got %s: %s", tt.wantErrKind, KindOf(err), err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal("user-42", got["sub"])
			assert.Equal(testIssuer, got["iss"])
		})
	}
}

func TestTokenValidator_ValidateUserInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg, provPriv := testConfigWithProviderKey(t)
	_, otherPriv := TestGenerateKeys(t)
	v := testTokenValidator(t, cfg)
	claims := map[string]interface{}{"claims": map[string]interface{}{"email": "alice@example.com"}}

	providerNow := time.Now().Add(-3 * time.Hour)

	tests := []struct {
		name        string
		token       string
		serverTime  time.Time
		wantErrKind Kind
		wantIsErr   error
	}{
		{
			name:  "valid-minimal",
			token: TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42"}, claims),
		},
		{
			name:       "valid-by-provider-clock",
			token:      TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42", Expiry: josejwt.NewNumericDate(providerNow.Add(5 * time.Minute))}, claims),
			serverTime: providerNow,
		},
		{
			name:        "expired-by-provider-clock",
			token:       TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42", Expiry: josejwt.NewNumericDate(time.Now().Add(-time.Hour))}, claims),
			serverTime:  time.Now(),
			wantErrKind: KindProtocol,
			wantIsErr:   ErrExpiredToken,
		},
		{
			name:  "valid-iss-aud",
			token: TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42", Issuer: testIssuer, Audience: josejwt.Audience{testClientID}}, claims),
		},
		{
			name:        "wrong-key",
			token:       TestSignJWT(t, otherPriv, josejwt.Claims{Subject: "user-42"}, claims),
			wantErrKind: KindCrypto,
			wantIsErr:   ErrInvalidSignature,
		},
		{
			name:        "missing-sub",
			token:       TestSignJWT(t, provPriv, josejwt.Claims{Issuer: testIssuer}, claims),
			wantErrKind: KindProtocol,
			wantIsErr:   ErrMissingSubject,
		},
		{
			name:        "wrong-issuer",
			token:       TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42", Issuer: "https://evil.example.com"}, claims),
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidIssuer,
		},
		{
			name:        "wrong-audience",
			token:       TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42", Audience: josejwt.Audience{"other"}}, claims),
			wantErrKind: KindProtocol,
			wantIsErr:   ErrInvalidAudience,
		},
		{
			name:        "expired",
			token:       TestSignJWT(t, provPriv, josejwt.Claims{Subject: "user-42", Expiry: josejwt.NewNumericDate(time.Now().Add(-time.Hour))}, claims),
			wantErrKind: KindProtocol,
			wantIsErr:   ErrExpiredToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := v.ValidateUserInfo(ctx, tt.token, tt.serverTime)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.True(IsKind(err, tt.wantErrKind))
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal("user-42", got["sub"])
			assert.Equal(claims["claims"], got["claims"])
		})
	}
}

func TestTokenValidator_ValidateTokensBelongTogether(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfigWithProviderKey(t)
	v := testTokenValidator(t, cfg)
	tests := []struct {
		name     string
		idToken  map[string]interface{}
		userInfo map[string]interface{}
		wantErr  bool
	}{
		{name: "same", idToken: map[string]interface{}{"sub": "a"}, userInfo: map[string]interface{}{"sub": "a"}},
		{name: "different", idToken: map[string]interface{}{"sub": "a"}, userInfo: map[string]interface{}{"sub": "b"}, wantErr: true},
		{name: "both-missing", idToken: map[string]interface{}{}, userInfo: map[string]interface{}{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTokensBelongTogether(tt.idToken, tt.userInfo)
			if tt.wantErr {
				assert.True(t, IsKind(err, KindConsistency))
				assert.ErrorIs(t, err, ErrSubjectMismatch)
				return
			}
			assert.NoError(t, err)
		})
	}
}
