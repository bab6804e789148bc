package clientassertion

import "errors"

var (
	ErrMissingClientID      = errors.New("missing client ID")
	ErrMissingAudience      = errors.New("missing audience")
	ErrMissingKeyOrSecret   = errors.New("missing private key or client secret")
	ErrInvalidLifetime      = errors.New("invalid lifetime")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidSecretLength  = errors.New("invalid secret length for algorithm")
	ErrCreatingSigner       = errors.New("error creating jwt signer")
)
