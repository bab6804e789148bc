package oidc

import (
	"encoding/json"
	"time"
)

// IDToken is a compact serialized oidc id_token, encrypted or signed.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// TokenRequest holds what the Collector sends to the token endpoint.
type TokenRequest struct {
	// Code is the authorization code from the callback.
	Code string

	// RedirectURI is the redirect URI used when the flow was initiated.
	RedirectURI string

	// RequestURI is set only for externally initiated flows, it binds the
	// exchange to the request object the flow was started with.
	RequestURI string
}

// TokenResponse is the result of a successful authorization code exchange.
type TokenResponse struct {
	// IDToken is the encrypted (compact JWE) id_token.
	IDToken IDToken

	// AccessToken is optional. The provider only issues one when there are
	// userinfo claims to fetch.
	AccessToken AccessToken

	// ServerTime is the provider's clock at the time of the exchange.
	ServerTime time.Time
}

// HasAccessToken reports whether the exchange yielded an access token.
func (t *TokenResponse) HasAccessToken() bool {
	return t != nil && t.AccessToken != ""
}
