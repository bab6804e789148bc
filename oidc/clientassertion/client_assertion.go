package clientassertion

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
	"github.com/idtrust/rpflow/jwt"
)

const (
	// JWTTypeParam is the proper value for client_assertion_type.
	// https://www.rfc-editor.org/rfc/rfc7523.html#section-2.2
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a serialized assertion is valid.
	DefaultLifetime = 5 * time.Minute
)

// JWT is a client assertion: a JWT by which the relying party authenticates
// itself to the token endpoint. Every Serialize returns a fresh token with a
// new jti.
type JWT struct {
	clientID string
	audience []string
	lifetime time.Duration

	// key signs private_key_jwt assertions
	key *jwt.PrivateKey

	// secret and alg sign client_secret_jwt assertions
	secret string
	alg    HSAlgorithm
	keyID  string

	genID func() (string, error)
	now   func() time.Time
}

// NewJWTWithKey creates a private_key_jwt assertion signed with key, usually
// the relying party's signing key whose public part the provider knows.
//
// Supported options: WithLifetime, WithNow
func NewJWTWithKey(clientID string, audience []string, key *jwt.PrivateKey, opt ...Option) (*JWT, error) {
	const op = "clientassertion.NewJWTWithKey"
	j := newJWT(clientID, audience, opt...)
	j.key = key
	if err := j.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// NewJWTWithHMAC creates a client_secret_jwt assertion signed with secret.
//
// Supported options: WithLifetime, WithKeyID, WithNow
func NewJWTWithHMAC(clientID string, audience []string, alg HSAlgorithm, secret string, opt ...Option) (*JWT, error) {
	const op = "clientassertion.NewJWTWithHMAC"
	j := newJWT(clientID, audience, opt...)
	j.alg, j.secret = alg, secret
	if err := j.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

func newJWT(clientID string, audience []string, opt ...Option) *JWT {
	opts := getOpts(opt...)
	return &JWT{
		clientID: clientID,
		audience: audience,
		lifetime: opts.withLifetime,
		keyID:    opts.withKeyID,
		genID:    uuid.GenerateUUID,
		now:      opts.withNowFunc,
	}
}

func (j *JWT) validate() error {
	var errs *multierror.Error
	if j.clientID == "" {
		errs = multierror.Append(errs, ErrMissingClientID)
	}
	if len(j.audience) == 0 {
		errs = multierror.Append(errs, ErrMissingAudience)
	}
	if j.lifetime <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrInvalidLifetime, j.lifetime))
	}
	switch {
	case j.key == nil && j.secret == "":
		errs = multierror.Append(errs, ErrMissingKeyOrSecret)
	case j.key == nil:
		if err := j.alg.Validate(j.secret); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Serialize returns a signed client assertion.
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	id, err := j.genID()
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate token id: %w", op, err)
	}
	now := j.now().UTC()
	claims := josejwt.Claims{
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		Expiry:    josejwt.NewNumericDate(now.Add(j.lifetime)),
		NotBefore: josejwt.NewNumericDate(now.Add(-1 * time.Second)),
		IssuedAt:  josejwt.NewNumericDate(now),
		ID:        id,
	}
	if j.key != nil {
		token, err := j.key.Sign(map[string]interface{}{
			"iss": claims.Issuer,
			"sub": claims.Subject,
			"aud": claims.Audience,
			"exp": claims.Expiry,
			"nbf": claims.NotBefore,
			"iat": claims.IssuedAt,
			"jti": claims.ID,
		})
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return token, nil
	}

	sOpts := (&jose.SignerOptions{}).WithType("JWT")
	if j.keyID != "" {
		sOpts = sOpts.WithHeader(jose.HeaderKey("kid"), j.keyID)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(j.alg), Key: []byte(j.secret)}, sOpts)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrCreatingSigner, err)
	}
	token, err := josejwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: failed to serialize token: %w", op, err)
	}
	return token, nil
}
