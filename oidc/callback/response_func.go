package callback

import (
	"net/http"

	"github.com/idtrust/rpflow/oidc"
)

// SuccessResponseFunc is used by AuthCode to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful authentication response. The oidc.Result holds the
// verified subject and claims of the user. The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the user agent that completed the flow.
type SuccessResponseFunc func(state string, r *oidc.Result, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by the handlers to create a http response when a
// leg of the flow fails.
//
// The function receives the state returned as part of the authentication
// response (empty outside of AuthCode). It gets either the provider's error
// response or the error raised while processing the request, never both.
// oidc.KindOf(e) tells a tampered or replayed callback (KindProtocol,
// KindCrypto, KindConsistency) from a bad parameter (KindValidation) or an
// operational failure.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}
