package jwt

import "github.com/go-jose/go-jose/v4"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type keyOptions struct {
	withKeyID      string
	withSigningAlg jose.SignatureAlgorithm
}

func keyDefaults() keyOptions {
	return keyOptions{
		withSigningAlg: jose.RS256,
	}
}

// getKeyOpts gets the defaults and applies the opt overrides passed
// in.
func getKeyOpts(opt ...Option) keyOptions {
	opts := keyDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithKeyID sets the "kid" header of tokens signed by a PrivateKey.
func WithKeyID(keyID string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *keyOptions:
			v.withKeyID = keyID
		}
	}
}

// WithSigningAlg sets the RSA signature algorithm used by a PrivateKey. The
// default is RS256.
func WithSigningAlg(alg string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *keyOptions:
			v.withSigningAlg = jose.SignatureAlgorithm(alg)
		}
	}
}
