package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

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

// WithNow provides an optional func for determining what the current time it
// is, for: Initiator, Collector, TokenValidator
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *initiatorOptions:
			v.withNowFunc = now
		case *collectorOptions:
			v.withNowFunc = now
		case *validatorOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for: Initiator, Collector,
// HTTPTransport
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *initiatorOptions:
			v.withLogger = l
		case *collectorOptions:
			v.withLogger = l
		case *transportOptions:
			v.withLogger = l
		}
	}
}
