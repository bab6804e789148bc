package oidc

import (
	"errors"
	"strings"
)

var (
	ErrInvalidParameter         = errors.New("invalid parameter")
	ErrNilParameter             = errors.New("nil parameter")
	ErrInvalidCACert            = errors.New("invalid CA certificate")
	ErrInvalidIssuer            = errors.New("invalid issuer")
	ErrInvalidMaxAge            = errors.New("invalid max_age")
	ErrUnsupportedRequestSource = errors.New("unsupported request source")
	ErrIdGeneratorFailed        = errors.New("id generation failed")
	ErrStoreFailed              = errors.New("session store operation failed")
	ErrUnexpectedMethod         = errors.New("unexpected request method")
	ErrInvalidState             = errors.New("invalid state")
	ErrMissingCodeAndError      = errors.New("neither code nor error parameter is set")
	ErrMissingRedirectURI       = errors.New("redirect uri is not set in session")
	ErrInvalidFlowState         = errors.New("invalid flow state")
	ErrTokenExchangeFailed      = errors.New("token exchange failed")
	ErrMissingIdToken           = errors.New("id_token is missing")
	ErrDecryptionFailed         = errors.New("decryption failed")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrInvalidAudience          = errors.New("invalid audience")
	ErrExpiredToken             = errors.New("token is expired")
	ErrInvalidIssuedAt          = errors.New("invalid issued at (iat)")
	ErrInvalidNonce             = errors.New("invalid nonce")
	ErrMissingSubject           = errors.New("sub is missing")
	ErrMalformedToken           = errors.New("malformed token")
	ErrUserInfoFailed           = errors.New("user info failed")
	ErrSubjectMismatch          = errors.New("id_token and userinfo subjects are not equal")
	ErrRequestURIFailed         = errors.New("request uri fetch failed")
	ErrMatchingResponse         = errors.New("response does not match the requested claims")
	ErrUpstreamResponse         = errors.New("provider returned an error response")
	ErrNoAccessToken            = errors.New("no access token")
)

// Kind classifies the errors returned by the flow engine.
type Kind uint32

const (
	KindUnknown Kind = iota

	// KindValidation is malformed or missing caller input.
	KindValidation

	// KindProtocol is a state or nonce mismatch, an unexpected request method or
	// a malformed provider response.
	KindProtocol

	// KindCrypto is a decryption or signature verification failure.
	KindCrypto

	// KindConsistency is a violated invariant: tampered or expired session
	// data, mismatched subjects or a missing expected field.
	KindConsistency

	// KindConfiguration is a programming or configuration error detected when
	// a component is constructed.
	KindConfiguration

	// KindUpstream is an error response sent by the provider. The engine
	// reports these through Result, they only surface as errors when a caller
	// asks an error Result for its claims.
	KindUpstream

	// KindInternal is an unexpected failure of a collaborator (store, rng).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindProtocol:
		return "protocol error"
	case KindCrypto:
		return "crypto error"
	case KindConsistency:
		return "consistency error"
	case KindConfiguration:
		return "configuration error"
	case KindUpstream:
		return "upstream error"
	case KindInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// Err provides the ability to specify a Msg, Op, Kind and Wrapped error.
type Err struct {
	// Op represents the operation raising/propagating an error and is optional
	Op string

	// Kind classifies the error and is optional
	Kind Kind

	// Msg for the error and is optional
	Msg string

	// Wrapped is the error which this Err wraps and is optional
	Wrapped error
}

// NewError creates a new Err with the provided Kind and options.
//
// Supported options: WithOp, WithMsg, WithWrap
func NewError(k Kind, opt ...Option) error {
	opts := getErrOpts(opt...)
	return &Err{
		Op:      opts.withOp,
		Kind:    k,
		Msg:     opts.withErrMsg,
		Wrapped: opts.withErrWrapped,
	}
}

// WrapError wraps err in a new Err which keeps the Kind of the first Err found
// in err's chain.
//
// Supported options: WithOp, WithMsg
func WrapError(err error, opt ...Option) error {
	if err == nil {
		return nil
	}
	opts := getErrOpts(opt...)
	return &Err{
		Op:      opts.withOp,
		Kind:    KindOf(err),
		Msg:     opts.withErrMsg,
		Wrapped: err,
	}
}

// Error satisfies the error interface and returns a string representation of
// the error: "op: msg: wrapped error".
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Wrapped != nil {
		parts = append(parts, e.Wrapped.Error())
	}
	if len(parts) == 0 {
		return e.Kind.String()
	}
	return strings.Join(parts, ": ")
}

// Unwrap implements the errors.Unwrap interface.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// KindOf returns the Kind of the outermost Err in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Err
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// errOptions is the set of available options for Err functions
type errOptions struct {
	withErrMsg     string
	withErrWrapped error
	withOp         string
}

// errDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func errDefaults() errOptions {
	return errOptions{}
}

// getErrOpts gets the defaults and applies the opt overrides passed in.
func getErrOpts(opt ...Option) errOptions {
	opts := errDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithMsg provides an optional message for an Err.
func WithMsg(msg string) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withErrMsg = msg
		}
	}
}

// WithWrap provides an optional wrapped error for an Err.
func WithWrap(e error) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withErrWrapped = e
		}
	}
}

// WithOp provides an optional operation for an Err.
func WithOp(op string) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withOp = op
		}
	}
}
