package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/idtrust/rpflow/jwt"
)

// TokenValidator validates the id_tokens and userinfo tokens of the
// provider. Both are expected as signed JWTs, the caller decrypts them first.
type TokenValidator struct {
	cfg     *Config
	keySet  jwt.KeySet
	algs    []jose.SignatureAlgorithm
	nonces  StateNonceHandler
	leeway  time.Duration
	nowFunc func() time.Time
}

// NewTokenValidator creates a TokenValidator which verifies signatures with
// keySet, the provider's key set.
//
// Supported options: WithNow, WithClockSkew
func NewTokenValidator(cfg *Config, keySet jwt.KeySet, opt ...Option) (*TokenValidator, error) {
	const op = "oidc.NewTokenValidator"
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	if keySet == nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("provider key set is nil"), WithWrap(ErrNilParameter))
	}
	opts := getValidatorOpts(opt...)
	algs := make([]jose.SignatureAlgorithm, 0, len(cfg.Provider.SupportedSigningAlgs))
	for _, a := range cfg.Provider.SupportedSigningAlgs {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}
	return &TokenValidator{
		cfg:     cfg,
		keySet:  keySet,
		algs:    algs,
		leeway:  opts.withClockSkew,
		nowFunc: opts.withNowFunc,
	}, nil
}

func (v *TokenValidator) now() time.Time {
	if v.nowFunc != nil {
		return v.nowFunc()
	}
	return time.Now()
}

// ValidateIDToken verifies the signature of token and validates its iss, aud,
// exp and iat against serverTime, the provider's clock. The nonce must match
// the nonce issued for the session (see StateNonceHandler.ValidateNonce). It
// returns the claims of the token.
func (v *TokenValidator) ValidateIDToken(ctx context.Context, store Store, token string, serverTime time.Time, externallyInitiated bool) (map[string]interface{}, error) {
	const op = "TokenValidator.ValidateIDToken"
	raw, claims, err := v.verify(ctx, token)
	if err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("id_token"))
	}
	if claims.Expiry == nil {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg("id_token has no exp"), WithWrap(ErrExpiredToken))
	}
	if claims.IssuedAt == nil {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg("id_token has no iat"), WithWrap(ErrInvalidIssuedAt))
	}
	if claims.Subject == "" {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg("id_token has no sub"), WithWrap(ErrMissingSubject))
	}
	if serverTime.IsZero() {
		serverTime = v.now()
	}
	if err := v.validateClaims(claims, serverTime); err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("id_token"))
	}
	nonce, _ := raw["nonce"].(string)
	if err := v.nonces.ValidateNonce(ctx, store, nonce, externallyInitiated); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	return raw, nil
}

// ValidateUserInfo verifies the signature of token and requires a sub. The
// iss, aud and exp of the token are validated when present, exp against
// serverTime like the id_token's. It returns the claims of the token.
func (v *TokenValidator) ValidateUserInfo(ctx context.Context, token string, serverTime time.Time) (map[string]interface{}, error) {
	const op = "TokenValidator.ValidateUserInfo"
	raw, claims, err := v.verify(ctx, token)
	if err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("userinfo"))
	}
	if claims.Subject == "" {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg("userinfo has no sub"), WithWrap(ErrMissingSubject))
	}
	if claims.Issuer != "" && claims.Issuer != v.cfg.Provider.Issuer {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg(fmt.Sprintf("userinfo issuer %q is not %q", claims.Issuer, v.cfg.Provider.Issuer)), WithWrap(ErrInvalidIssuer))
	}
	if len(claims.Audience) > 0 && !claims.Audience.Contains(v.cfg.ClientID) {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg("userinfo audience does not contain the client id"), WithWrap(ErrInvalidAudience))
	}
	if serverTime.IsZero() {
		serverTime = v.now()
	}
	if claims.Expiry != nil && serverTime.Add(-v.leeway).After(claims.Expiry.Time()) {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg("userinfo"), WithWrap(ErrExpiredToken))
	}
	return raw, nil
}

// ValidateTokensBelongTogether requires the id_token and userinfo to be about
// the same subject.
func (v *TokenValidator) ValidateTokensBelongTogether(idToken, userInfo map[string]interface{}) error {
	const op = "TokenValidator.ValidateTokensBelongTogether"
	idSub, _ := idToken["sub"].(string)
	uiSub, _ := userInfo["sub"].(string)
	if idSub == "" || idSub != uiSub {
		return NewError(KindConsistency, WithOp(op), WithWrap(ErrSubjectMismatch))
	}
	return nil
}

// verify checks the alg and signature of token and decodes its registered
// claims.
func (v *TokenValidator) verify(ctx context.Context, token string) (map[string]interface{}, *josejwt.Claims, error) {
	const op = "TokenValidator.verify"
	if token == "" {
		return nil, nil, NewError(KindProtocol, WithOp(op), WithMsg("token is empty"), WithWrap(ErrMalformedToken))
	}
	if _, err := jose.ParseSigned(token, v.algs); err != nil {
		return nil, nil, NewError(KindProtocol, WithOp(op), WithMsg(fmt.Sprintf("not a signed token with a supported alg: %s", err)), WithWrap(ErrMalformedToken))
	}
	raw, err := v.keySet.VerifySignature(ctx, token)
	if err != nil {
		return nil, nil, NewError(KindCrypto, WithOp(op), WithMsg(err.Error()), WithWrap(ErrInvalidSignature))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, NewError(KindInternal, WithOp(op), WithMsg(fmt.Sprintf("unable to encode claims: %s", err)))
	}
	var claims josejwt.Claims
	if err := json.Unmarshal(b, &claims); err != nil {
		return nil, nil, NewError(KindProtocol, WithOp(op), WithMsg(fmt.Sprintf("unable to decode registered claims: %s", err)), WithWrap(ErrMalformedToken))
	}
	return raw, &claims, nil
}

func (v *TokenValidator) validateClaims(claims *josejwt.Claims, at time.Time) error {
	const op = "TokenValidator.validateClaims"
	err := claims.ValidateWithLeeway(josejwt.Expected{
		Issuer:      v.cfg.Provider.Issuer,
		AnyAudience: josejwt.Audience{v.cfg.ClientID},
		Time:        at,
	}, v.leeway)
	if err == nil {
		return nil
	}
	var sentinel error
	switch {
	case errors.Is(err, josejwt.ErrInvalidIssuer):
		sentinel = ErrInvalidIssuer
	case errors.Is(err, josejwt.ErrInvalidAudience):
		sentinel = ErrInvalidAudience
	case errors.Is(err, josejwt.ErrIssuedInTheFuture):
		sentinel = ErrInvalidIssuedAt
	default:
		sentinel = ErrExpiredToken
	}
	return NewError(KindProtocol, WithOp(op), WithMsg(err.Error()), WithWrap(sentinel))
}

// validatorOptions is the set of available options for TokenValidator
type validatorOptions struct {
	withNowFunc   func() time.Time
	withClockSkew time.Duration
}

// validatorDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func validatorDefaults() validatorOptions {
	return validatorOptions{
		withClockSkew: josejwt.DefaultLeeway,
	}
}

// getValidatorOpts gets the defaults and applies the opt overrides passed in.
func getValidatorOpts(opt ...Option) validatorOptions {
	opts := validatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClockSkew overrides the leeway (default 1m) allowed when validating
// exp, iat and nbf, for: TokenValidator, Collector
func WithClockSkew(d time.Duration) Option {
	return func(o interface{}) {
		if d < 0 {
			return
		}
		switch v := o.(type) {
		case *validatorOptions:
			v.withClockSkew = d
		case *collectorOptions:
			v.withClockSkew = d
		}
	}
}
