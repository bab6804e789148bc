package clientassertion

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withLifetime time.Duration
	withKeyID    string
	withNowFunc  func() time.Time
}

func optsDefaults() options {
	return options{
		withLifetime: DefaultLifetime,
		withNowFunc:  time.Now,
	}
}

func getOpts(opt ...Option) options {
	opts := optsDefaults()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithLifetime sets how long a serialized assertion is valid.
func WithLifetime(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withLifetime = d
		}
	}
}

// WithKeyID sets the "kid" header of client_secret_jwt assertions. A
// private_key_jwt assertion carries the kid of its key.
func WithKeyID(keyID string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withKeyID = keyID
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
