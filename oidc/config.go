package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/idtrust/rpflow/jwt"
	sdkHttp "github.com/idtrust/rpflow/sdk/http"
)

type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the relying party's configuration for the authorization
// code flow with its one provider.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// Provider describes the identity provider.
	Provider *ProviderConfig

	// SigningKey signs request objects. Its public half authenticates request
	// objects served from a request URI.
	SigningKey *jwt.PrivateKey

	// EncryptionKey decrypts id_tokens and userinfo tokens. It may be the same
	// key as SigningKey.
	EncryptionKey *jwt.PrivateKey

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string
}

// NewConfig composes a new config for the relying party.
//
// Supported options:
//   - WithSigningKey
//   - WithEncryptionKey (defaults to the signing key)
//   - WithProviderCA
func NewConfig(clientID string, clientSecret ClientSecret, redirectURL string, provider *ProviderConfig, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		RedirectURL:   redirectURL,
		Provider:      provider,
		SigningKey:    opts.withSigningKey,
		EncryptionKey: opts.withEncryptionKey,
		ProviderCA:    opts.withProviderCA,
	}
	if c.EncryptionKey == nil {
		c.EncryptionKey = c.SigningKey
	}
	if err := c.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("invalid config"))
	}
	return c, nil
}

// Validate the configuration. Among other validations, it verifies the
// provider configuration, but it doesn't make any requests to the provider.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return NewError(KindConfiguration, WithOp(op), WithMsg("config is nil"), WithWrap(ErrNilParameter))
	}
	if c.ClientID == "" {
		return NewError(KindConfiguration, WithOp(op), WithMsg("client id is empty"), WithWrap(ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		return NewError(KindConfiguration, WithOp(op), WithMsg("client secret is empty"), WithWrap(ErrInvalidParameter))
	}
	if err := validateEndpoint(c.RedirectURL); err != nil {
		return NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("redirect URL %q is invalid: %s", c.RedirectURL, err)), WithWrap(ErrInvalidParameter))
	}
	if c.SigningKey == nil {
		return NewError(KindConfiguration, WithOp(op), WithMsg("signing key is nil"), WithWrap(ErrNilParameter))
	}
	if c.EncryptionKey == nil {
		return NewError(KindConfiguration, WithOp(op), WithMsg("encryption key is nil"), WithWrap(ErrNilParameter))
	}
	if err := c.Provider.Validate(); err != nil {
		return WrapError(err, WithOp(op))
	}
	return nil
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, NewError(KindConfiguration, WithOp(op), WithMsg("could not parse CA PEM value successfully"), WithWrap(ErrInvalidCACert))
		}
		return nil, NewError(KindInternal, WithOp(op), WithMsg("could not get an http client"), WithWrap(err))
	}
	return client, nil
}

// configOptions is the set of available options
type configOptions struct {
	withSigningKey    *jwt.PrivateKey
	withEncryptionKey *jwt.PrivateKey
	withProviderCA    string
}

// configDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSigningKey provides the relying party's signing key.
func WithSigningKey(k *jwt.PrivateKey) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSigningKey = k
		}
	}
}

// WithEncryptionKey provides the relying party's encryption key.
func WithEncryptionKey(k *jwt.PrivateKey) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEncryptionKey = k
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
