package oidc

import (
	"net/url"
)

// AuthRequest is an authentication request as sent to the provider's
// authorization endpoint: the client, the state and nonce of the flow, the
// display parameters and exactly one request source parameter (request or
// request_uri). It is immutable once built.
type AuthRequest struct {
	clientID     string
	state        string
	nonce        string
	display      string
	uiLocales    string
	ext          string
	requestParam string
	requestValue string
}

// ClientID returns the client_id of the request.
func (r *AuthRequest) ClientID() string { return r.clientID }

// State returns the state of the request.
func (r *AuthRequest) State() string { return r.state }

// Nonce returns the nonce of the request.
func (r *AuthRequest) Nonce() string { return r.nonce }

// RequestParam returns the name ("request" or "request_uri") and value of the
// request source parameter.
func (r *AuthRequest) RequestParam() (name, value string) {
	return r.requestParam, r.requestValue
}

// Values returns the query parameters of the request. Each call returns a
// new copy.
func (r *AuthRequest) Values() url.Values {
	return url.Values{
		"response_type": {responseTypeCode},
		"client_id":     {r.clientID},
		"scope":         {scopeOpenID},
		"state":         {r.state},
		"nonce":         {r.nonce},
		"display":       {r.display},
		"ui_locales":    {r.uiLocales},
		"ext":           {r.ext},
		r.requestParam:  {r.requestValue},
	}
}

// URL returns the request as a URL of endpoint. Query parameters already on
// endpoint are kept unless the request sets them.
func (r *AuthRequest) URL(endpoint string) (string, error) {
	return endpointURL(endpoint, r.Values())
}
