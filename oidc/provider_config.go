package oidc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/idtrust/rpflow/jwt"
	strutil "github.com/idtrust/rpflow/sdk/strutils"
)

// ProviderConfig describes the one identity provider the relying party talks
// to. Endpoints are configured statically, there is no discovery.
type ProviderConfig struct {
	// Issuer is the expected "iss" of the provider's id_tokens and userinfo
	// tokens. It is also the audience of request objects.
	Issuer string

	// AuthorizationEndpoint is where the user agent is redirected to start
	// a flow.
	AuthorizationEndpoint string

	// TokenEndpoint is used to exchange authorization codes.
	TokenEndpoint string

	// UserInfoEndpoint is used to fetch the encrypted userinfo token.
	UserInfoEndpoint string

	// JWKSURL is an optional URL of the provider's JSON Web Key Set. Either
	// JWKSURL or PublicKeys must be set.
	JWKSURL string

	// PublicKeys is an optional list of PEM encoded provider signing keys.
	PublicKeys []string

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512
	SupportedSigningAlgs []Alg
}

// NewProviderConfig composes a new provider configuration.
//
// Supported options:
//   - WithProviderJWKSURL
//   - WithProviderPublicKeys
//   - WithSupportedSigningAlgs
func NewProviderConfig(issuer, authorizationEndpoint, tokenEndpoint, userInfoEndpoint string, opt ...Option) (*ProviderConfig, error) {
	const op = "oidc.NewProviderConfig"
	opts := getProviderConfigOpts(opt...)
	c := &ProviderConfig{
		Issuer:                issuer,
		AuthorizationEndpoint: authorizationEndpoint,
		TokenEndpoint:         tokenEndpoint,
		UserInfoEndpoint:      userInfoEndpoint,
		JWKSURL:               opts.withJWKSURL,
		PublicKeys:            opts.withPublicKeys,
		SupportedSigningAlgs:  opts.withSupportedSigningAlgs,
	}
	if err := c.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("invalid provider config"))
	}
	return c, nil
}

// Validate the provider configuration. It doesn't make any requests to the
// provider.
func (c *ProviderConfig) Validate() error {
	const op = "ProviderConfig.Validate"
	if c == nil {
		return NewError(KindConfiguration, WithOp(op), WithMsg("provider config is nil"), WithWrap(ErrNilParameter))
	}
	if c.Issuer == "" {
		return NewError(KindConfiguration, WithOp(op), WithMsg("issuer is empty"), WithWrap(ErrInvalidParameter))
	}
	for _, e := range []struct{ name, value string }{
		{"authorization endpoint", c.AuthorizationEndpoint},
		{"token endpoint", c.TokenEndpoint},
		{"userinfo endpoint", c.UserInfoEndpoint},
	} {
		if err := validateEndpoint(e.value); err != nil {
			return NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("%s %q is invalid: %s", e.name, e.value, err)), WithWrap(ErrInvalidParameter))
		}
	}
	if c.JWKSURL == "" && len(c.PublicKeys) == 0 {
		return NewError(KindConfiguration, WithOp(op), WithMsg("one of jwks url or public keys is required"), WithWrap(ErrInvalidParameter))
	}
	if c.JWKSURL != "" {
		if err := validateEndpoint(c.JWKSURL); err != nil {
			return NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("jwks url %q is invalid: %s", c.JWKSURL, err)), WithWrap(ErrInvalidParameter))
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		return NewError(KindConfiguration, WithOp(op), WithMsg("supported algorithms is empty"), WithWrap(ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			return NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("unsupported algorithm: %s", a)), WithWrap(ErrInvalidParameter))
		}
	}
	return nil
}

// KeySet returns the key set used to verify the provider's signatures. A
// remote key set is refreshed using ctx, so ctx must outlive the key set.
func (c *ProviderConfig) KeySet(ctx context.Context, caPEM string) (jwt.KeySet, error) {
	const op = "ProviderConfig.KeySet"
	var ks jwt.KeySet
	var err error
	switch {
	case c.JWKSURL != "":
		ks, err = jwt.NewJSONWebKeySet(ctx, c.JWKSURL, caPEM)
	default:
		ks, err = jwt.NewStaticKeySet(c.PublicKeys)
	}
	if err != nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("unable to create provider key set: %s", err)), WithWrap(ErrInvalidParameter))
	}
	return ks, nil
}

func validateEndpoint(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}
	if !strutil.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is empty")
	}
	return nil
}

// providerConfigOptions is the set of available options
type providerConfigOptions struct {
	withJWKSURL              string
	withPublicKeys           []string
	withSupportedSigningAlgs []Alg
}

// providerConfigDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func providerConfigDefaults() providerConfigOptions {
	return providerConfigOptions{
		withSupportedSigningAlgs: []Alg{RS256},
	}
}

// getProviderConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getProviderConfigOpts(opt ...Option) providerConfigOptions {
	opts := providerConfigDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithProviderJWKSURL provides the URL of the provider's JSON Web Key Set.
func WithProviderJWKSURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerConfigOptions); ok {
			o.withJWKSURL = u
		}
	}
}

// WithProviderPublicKeys provides PEM encoded provider signing keys.
func WithProviderPublicKeys(keys ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerConfigOptions); ok {
			o.withPublicKeys = keys
		}
	}
}

// WithSupportedSigningAlgs overrides the default list (RS256) of algorithms
// accepted for provider signatures.
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerConfigOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}
