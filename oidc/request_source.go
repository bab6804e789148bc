package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/idtrust/rpflow/jwt"
)

// RequestSource is how the parameters of an authentication request reach the
// provider. It is one of RequestURI, RequestObject or RequestObjectJWT.
type RequestSource interface {
	// encode returns the query parameter carrying the request and the part of
	// the FlowState it determines.
	encode(ctx context.Context, env *requestEnv) (*encodedRequest, error)
}

// requestEnv is what a RequestSource may draw on while it is encoded.
type requestEnv struct {
	cfg    *Config
	acr    string
	maxAge int
	now    time.Time
}

type encodedRequest struct {
	param      string
	value      string
	requestURI string
	requested  RequestedClaims
}

const (
	paramRequest    = "request"
	paramRequestURI = "request_uri"
)

// RequestURI sends the request object by reference. The provider dereferences
// URI itself; the relying party fetches it again only when it needs the
// requested claims for matching response validation.
type RequestURI struct {
	URI string
}

func (s RequestURI) encode(_ context.Context, _ *requestEnv) (*encodedRequest, error) {
	const op = "RequestURI.encode"
	if err := validateEndpoint(s.URI); err != nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("request uri %q is invalid: %s", s.URI, err)), WithWrap(ErrInvalidParameter))
	}
	return &encodedRequest{param: paramRequestURI, value: s.URI, requestURI: s.URI}, nil
}

// Claims fetches the request object served at URI and returns the claims it
// requests. A signed request object must verify with keySet, which holds the
// relying party's public signing key. An encrypted request object yields
// EncryptedClaims.
func (s RequestURI) Claims(ctx context.Context, fetcher RequestURIFetcher, keySet jwt.KeySet) (RequestedClaims, error) {
	const op = "RequestURI.Claims"
	switch {
	case fetcher == nil:
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("fetcher is nil"), WithWrap(ErrNilParameter))
	case keySet == nil:
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("key set is nil"), WithWrap(ErrNilParameter))
	}
	body, err := fetcher.FetchRequestObject(ctx, s.URI)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	rc, err := claimsOfSignedRequest(ctx, body, keySet)
	if err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("request object served at request uri"))
	}
	return rc, nil
}

// RequestObject sends the request by value as a request object signed with
// the relying party's signing key.
type RequestObject struct {
	claims map[string]interface{}
}

// NewRequestObject creates a RequestObject requesting claims, the value of the
// request object's "claims" member (for example
// {"userinfo": {"email": {"essential": true}}}).
func NewRequestObject(claims map[string]interface{}) (*RequestObject, error) {
	const op = "oidc.NewRequestObject"
	if claims == nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("claims are nil"), WithWrap(ErrNilParameter))
	}
	return &RequestObject{claims: deepCopyMap(claims)}, nil
}

// NewRequestObjectFromJSON is NewRequestObject with the claims given as a JSON
// object.
func NewRequestObjectFromJSON(claimsJSON string) (*RequestObject, error) {
	const op = "oidc.NewRequestObjectFromJSON"
	var claims map[string]interface{}
	if err := json.Unmarshal([]byte(claimsJSON), &claims); err != nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("claims are not a json object: %s", err)), WithWrap(ErrInvalidParameter))
	}
	return NewRequestObject(claims)
}

// Claims returns a copy of the requested claims.
func (s *RequestObject) Claims() map[string]interface{} {
	return deepCopyMap(s.claims)
}

// ClaimSet returns the claim set signed into the request object.
func (s *RequestObject) ClaimSet(cfg *Config, acr string, maxAge int, now time.Time) (map[string]interface{}, error) {
	const op = "RequestObject.ClaimSet"
	jti, err := uuid.GenerateUUID()
	if err != nil {
		return nil, NewError(KindInternal, WithOp(op), WithMsg(fmt.Sprintf("unable to generate jti: %s", err)), WithWrap(ErrIdGeneratorFailed))
	}
	cs := map[string]interface{}{
		"iss":           cfg.ClientID,
		"aud":           cfg.Provider.Issuer,
		"client_id":     cfg.ClientID,
		"response_type": responseTypeCode,
		"scope":         scopeOpenID,
		"redirect_uri":  cfg.RedirectURL,
		"acr_values":    acr,
		"claims":        s.Claims(),
		"iat":           now.Unix(),
		"jti":           jti,
	}
	if maxAge > 0 {
		cs["max_age"] = maxAge
	}
	return cs, nil
}

func (s *RequestObject) encode(_ context.Context, env *requestEnv) (*encodedRequest, error) {
	const op = "RequestObject.encode"
	if s == nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("request object is nil"), WithWrap(ErrUnsupportedRequestSource))
	}
	cs, err := s.ClaimSet(env.cfg, env.acr, env.maxAge, env.now)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	signed, err := env.cfg.SigningKey.Sign(cs)
	if err != nil {
		return nil, NewError(KindCrypto, WithOp(op), WithMsg("unable to sign request object"), WithWrap(err))
	}
	return &encodedRequest{param: paramRequest, value: signed, requested: KnownClaims{Claims: s.Claims()}}, nil
}

// RequestObjectJWT sends a request object built outside the engine. A signed
// JWT must verify with the relying party's signing key, its "claims" member
// becomes the requested claims. An encrypted JWT is opaque, the flow then
// skips matching response validation and the caller takes on checking the
// granted claims.
type RequestObjectJWT struct {
	JWT string
}

func (s RequestObjectJWT) encode(ctx context.Context, env *requestEnv) (*encodedRequest, error) {
	const op = "RequestObjectJWT.encode"
	if s.JWT == "" {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("jwt is empty"), WithWrap(ErrInvalidParameter))
	}
	rc, err := claimsOfSignedRequest(ctx, s.JWT, env.cfg.SigningKey.KeySet())
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	return &encodedRequest{param: paramRequest, value: s.JWT, requested: rc}, nil
}

// claimsOfSignedRequest recovers the "claims" member of a request object.
func claimsOfSignedRequest(ctx context.Context, token string, keySet jwt.KeySet) (RequestedClaims, error) {
	const op = "oidc.claimsOfSignedRequest"
	if jwt.IsEncrypted(token) {
		return EncryptedClaims{}, nil
	}
	cs, err := keySet.VerifySignature(ctx, token)
	if err != nil {
		return nil, NewError(KindCrypto, WithOp(op), WithMsg("request object signature is invalid"), WithWrap(fmt.Errorf("%w: %w", ErrInvalidSignature, err)))
	}
	requested := map[string]interface{}{}
	if c, ok := cs["claims"]; ok {
		m, ok := c.(map[string]interface{})
		if !ok {
			return nil, NewError(KindProtocol, WithOp(op), WithMsg("request object claims member is not an object"), WithWrap(ErrMalformedToken))
		}
		requested = m
	}
	return KnownClaims{Claims: requested}, nil
}

var (
	_ RequestSource = RequestURI{}
	_ RequestSource = (*RequestObject)(nil)
	_ RequestSource = RequestObjectJWT{}
)
