package id

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

// DefaultLength is the number of random base62 characters in a generated id.
// 32 characters carry roughly 190 bits of entropy.
const DefaultLength = 32

// New generates a random ID with an optional prefix. The random part is drawn
// from crypto/rand and is suitable for a state, a nonce or a token id.
func New(optionalPrefix string) (string, error) {
	return NewWithLength(optionalPrefix, DefaultLength)
}

// NewWithLength is New with an explicit length for the random part.
func NewWithLength(optionalPrefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid id length %d", length)
	}
	id, err := base62.Random(length)
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}
