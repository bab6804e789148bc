package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	sdkhttp "github.com/idtrust/rpflow/sdk/http"
)

var (
	ErrInvalidSignature    = errors.New("no key of the key set verifies the token signature")
	ErrMissingJWKSURL      = errors.New("jwks url is empty")
	ErrNoPublicKeys        = errors.New("no public keys")
	ErrInvalidPublicKeyPEM = errors.New("data does not contain an RSA or ECDSA public key")
)

// SupportedSignatureAlgorithms are the JWS algorithms a StaticKeySet accepts.
var SupportedSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
}

// KeySet verifies signed tokens: the provider's id_tokens and userinfo
// tokens, or the relying party's own request objects.
type KeySet interface {
	// VerifySignature verifies the compact JWS token and returns its claims.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// JSONWebKeySet is a KeySet backed by a published JWKS. The keys are fetched
// on first use and fetched again when a token names an unknown kid.
type JSONWebKeySet struct {
	remote oidc.KeySet
}

// NewJSONWebKeySet creates a JSONWebKeySet for the JWKS at jwksURL. The
// server certificate is verified against jwksCAPEM when it is set.
//
// Keys are fetched with ctx, so it must outlive the KeySet.
func NewJSONWebKeySet(ctx context.Context, jwksURL string, jwksCAPEM string) (KeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingJWKSURL)
	}
	client, err := sdkhttp.NewClient(jwksCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return JSONWebKeySet{
		remote: oidc.NewRemoteKeySet(sdkhttp.OidcClientContext(ctx, client), jwksURL),
	}, nil
}

// VerifySignature implements KeySet.
func (ks JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	payload, err := ks.remote.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return decodeClaims(op, payload)
}

// StaticKeySet is a KeySet of fixed public keys, such as provider keys from
// configuration or the relying party's own signing key.
type StaticKeySet struct {
	publicKeys []crypto.PublicKey
}

// NewStaticKeySet creates a StaticKeySet from PEM encoded PKIX public keys or
// x509 certificates.
func NewStaticKeySet(publicKeys []string) (KeySet, error) {
	const op = "jwt.NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoPublicKeys)
	}
	ks := StaticKeySet{publicKeys: make([]crypto.PublicKey, 0, len(publicKeys))}
	for i, k := range publicKeys {
		pub, err := ParsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("%s: key %d: %w", op, i, err)
		}
		ks.publicKeys = append(ks.publicKeys, pub)
	}
	return ks, nil
}

// VerifySignature implements KeySet. Every key is tried in turn.
func (ks StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	jws, err := jose.ParseSigned(token, SupportedSignatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, pub := range ks.publicKeys {
		if payload, err := jws.Verify(pub); err == nil {
			return decodeClaims(op, payload)
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
}

func decodeClaims(op string, payload []byte) (map[string]interface{}, error) {
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%s: payload is not a claim set: %w", op, err)
	}
	return claims, nil
}

// ParsePublicKeyPEM returns the *rsa.PublicKey or *ecdsa.PublicKey in data, a
// PEM encoded PKIX public key or x509 certificate.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPublicKeyPEM
	}
	var pub crypto.PublicKey
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKeyPEM, err)
		}
		pub = cert.PublicKey
	default:
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKeyPEM, err)
		}
		pub = k
	}
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidPublicKeyPEM, pub)
	}
}
