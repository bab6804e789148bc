package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/idtrust/rpflow/jwt"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeys will generate a test RSA 2048 pub/priv key pair, PEM
// encoded (PKIX public key, PKCS8 private key).
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)

	{
		derBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
		require.NoError(err)
		priv = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: derBytes}))
	}
	{
		derBytes, err := x509.MarshalPKIXPublicKey(privateKey.Public())
		require.NoError(err)
		pub = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes}))
	}
	return pub, priv
}

// TestGeneratePrivateKey will generate a relying party key pair.
func TestGeneratePrivateKey(t *testing.T, opt ...jwt.Option) *jwt.PrivateKey {
	t.Helper()
	_, priv := TestGenerateKeys(t)
	k, err := jwt.ParsePrivateKeyPEM(priv, opt...)
	require.NoError(t, err)
	return k
}

// TestSignJWT will bundle the provided claims into a test JWT signed RS256
// with the PEM encoded RSA key.
func TestSignJWT(t *testing.T, rsaPrivKeyPEM string, claims josejwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)
	key := testParseRSAKey(t, rsaPrivKeyPEM)

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	builder := josejwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		builder = builder.Claims(privateClaims)
	}
	raw, err := builder.Serialize()
	require.NoError(err)
	return raw
}

// TestEncryptJWE will encrypt plaintext (typically a signed JWT) as a compact
// JWE addressed to the RSA public key (RSA-OAEP-256, A256GCM).
func TestEncryptJWE(t *testing.T, recipient *rsa.PublicKey, plaintext string) string {
	t.Helper()
	require := require.New(t)
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: recipient},
		(&jose.EncrypterOptions{}).WithContentType("JWT"),
	)
	require.NoError(err)
	obj, err := enc.Encrypt([]byte(plaintext))
	require.NoError(err)
	raw, err := obj.CompactSerialize()
	require.NoError(err)
	return raw
}

func testParseRSAKey(t *testing.T, rsaPrivKeyPEM string) *rsa.PrivateKey {
	t.Helper()
	require := require.New(t)
	block, _ := pem.Decode([]byte(rsaPrivKeyPEM))
	require.NotNil(block)
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(err)
	rsaKey, ok := k.(*rsa.PrivateKey)
	require.True(ok)
	return rsaKey
}

// TestGenerateCA will generate a test x509 CA cert encoded in a PEM format.
func TestGenerateCA(t *testing.T, hosts []string) (*x509.Certificate, string) {
	t.Helper()
	require := require.New(t)

	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(err)

	// ECDSA, ED25519 and RSA subject keys should have the DigitalSignature
	// KeyUsage bits set in the x509.Certificate template
	keyUsage := x509.KeyUsageDigitalSignature

	validFor := 2 * time.Minute
	notBefore := time.Now()
	notAfter := notBefore.Add(validFor)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	require.NoError(err)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Acme Co"},
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,

		KeyUsage:              keyUsage,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	template.IsCA = true
	template.KeyUsage |= x509.KeyUsageCertSign

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(err)

	c, err := x509.ParseCertificate(derBytes)
	require.NoError(err)

	return c, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}))
}
