package clientassertion

import "fmt"

// HSAlgorithm is an HMAC signature algorithm
type HSAlgorithm string

// JOSE HMAC signing algorithm values as defined by RFC 7518.
// See: https://tools.ietf.org/html/rfc7518#section-3.1
const (
	HS256 HSAlgorithm = "HS256" // HMAC using SHA-256
	HS384 HSAlgorithm = "HS384" // HMAC using SHA-384
	HS512 HSAlgorithm = "HS512" // HMAC using SHA-512
)

// Validate checks that the secret is long enough for a:
//   - HS256: >= 32 bytes
//   - HS384: >= 48 bytes
//   - HS512: >= 64 bytes
func (a HSAlgorithm) Validate(secret string) error {
	const op = "HSAlgorithm.Validate"
	var minLen int
	switch a {
	case HS256:
		minLen = 32
	case HS384:
		minLen = 48
	case HS512:
		minLen = 64
	default:
		return fmt.Errorf("%s: %w %q for client secret", op, ErrUnsupportedAlgorithm, a)
	}
	if len(secret) < minLen {
		return fmt.Errorf("%s: %w: %q needs %d bytes", op, ErrInvalidSecretLength, a, minLen)
	}
	return nil
}
