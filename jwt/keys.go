package jwt

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrNilPrivateKey   = errors.New("nil private key")
	ErrInvalidKeyPEM   = errors.New("data does not contain a valid RSA private key")
	ErrCreatingSigner  = errors.New("error creating jwt signer")
	ErrNotEncrypted    = errors.New("token is not a compact JWE")
	ErrDecryptFailed   = errors.New("unable to decrypt token")
	ErrUnsupportedAlgs = errors.New("unsupported algorithm")
)

// KeyAlgorithms are the JWE key management algorithms accepted when
// decrypting tokens addressed to the relying party.
var KeyAlgorithms = []jose.KeyAlgorithm{
	jose.RSA_OAEP,
	jose.RSA_OAEP_256,
}

// ContentEncryptions are the JWE content encryption algorithms accepted when
// decrypting tokens addressed to the relying party.
var ContentEncryptions = []jose.ContentEncryption{
	jose.A128CBC_HS256,
	jose.A192CBC_HS384,
	jose.A256CBC_HS512,
	jose.A128GCM,
	jose.A192GCM,
	jose.A256GCM,
}

// PrivateKey is an RSA key pair owned by the relying party. The same type
// serves both roles the relying party has: signing request objects and
// decrypting the provider's encrypted tokens.
type PrivateKey struct {
	key   *rsa.PrivateKey
	keyID string
	alg   jose.SignatureAlgorithm
}

// NewPrivateKey wraps an RSA private key.
//
// Supported options:
//   - WithKeyID
//   - WithSigningAlg
func NewPrivateKey(key *rsa.PrivateKey, opt ...Option) (*PrivateKey, error) {
	const op = "jwt.NewPrivateKey"
	if key == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getKeyOpts(opt...)
	switch opts.withSigningAlg {
	case jose.RS256, jose.RS384, jose.RS512, jose.PS256, jose.PS384, jose.PS512:
	default:
		return nil, fmt.Errorf("%s: %w %q for RSA key", op, ErrUnsupportedAlgs, opts.withSigningAlg)
	}
	return &PrivateKey{
		key:   key,
		keyID: opts.withKeyID,
		alg:   opts.withSigningAlg,
	}, nil
}

// ParsePrivateKeyPEM parses a PKCS#1 or PKCS#8 PEM-encoded RSA private key.
func ParsePrivateKeyPEM(data string, opt ...Option) (*PrivateKey, error) {
	const op = "jwt.ParsePrivateKeyPEM"
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidKeyPEM)
	}
	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKeyPEM, err)
		}
		key = k
	default:
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKeyPEM, err)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: %w: not an RSA key", op, ErrInvalidKeyPEM)
		}
		key = rsaKey
	}
	return NewPrivateKey(key, opt...)
}

// KeyID returns the "kid" placed in the header of signed tokens.
func (k *PrivateKey) KeyID() string { return k.keyID }

// Public returns the public half of the key pair.
func (k *PrivateKey) Public() *rsa.PublicKey { return &k.key.PublicKey }

// PublicKeyPEM returns the PKIX PEM encoding of the public key.
func (k *PrivateKey) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.Public())
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// KeySet returns a KeySet which verifies tokens signed by this key.
func (k *PrivateKey) KeySet() KeySet {
	return StaticKeySet{publicKeys: []crypto.PublicKey{k.Public()}}
}

// Sign serializes claims as a compact JWS signed with the private key.
func (k *PrivateKey) Sign(claims map[string]interface{}) (string, error) {
	const op = "PrivateKey.Sign"
	sOpts := (&jose.SignerOptions{}).WithType("JWT")
	if k.keyID != "" {
		sOpts = sOpts.WithHeader(jose.HeaderKey("kid"), k.keyID)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: k.alg, Key: k.key}, sOpts)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrCreatingSigner, err)
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: failed to serialize token: %w", op, err)
	}
	return token, nil
}

// Decrypt decrypts a compact serialized JWE addressed to this key and returns
// its plaintext.
func (k *PrivateKey) Decrypt(token string) ([]byte, error) {
	const op = "PrivateKey.Decrypt"
	if !IsEncrypted(token) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotEncrypted)
	}
	jwe, err := jose.ParseEncrypted(token, KeyAlgorithms, ContentEncryptions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDecryptFailed, err)
	}
	plaintext, err := jwe.Decrypt(k.key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDecryptFailed, err)
	}
	return plaintext, nil
}

// IsEncrypted reports whether token has the five part compact JWE form.
func IsEncrypted(token string) bool {
	return strings.Count(strings.TrimSpace(token), ".") == 4
}
