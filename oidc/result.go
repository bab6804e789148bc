package oidc

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of a completed flow. It either carries the verified
// claims of the user or the error the provider returned (see HasError). A
// Result is immutable.
type Result struct {
	errorCode        string
	errorDescription string

	data        map[string]interface{}
	claims      Claims
	idToken     *IDTokenClaims
	userInfo    *UserInfoClaims
	accessToken AccessToken
}

// newErrorResult is the Result of a flow the provider ended with an error
// response.
func newErrorResult(code, description string) *Result {
	return &Result{errorCode: code, errorDescription: description}
}

// assembleResult merges the id_token and userinfo claim sets. The top level
// fields of the id_token are kept, except for its "claims" member which is
// replaced by the "claims" member of userinfo, or an empty object when
// userinfo wasn't fetched or has none.
func assembleResult(idToken, userInfo map[string]interface{}, accessToken AccessToken) (*Result, error) {
	const op = "oidc.assembleResult"
	data := deepCopyMap(idToken)
	if data == nil {
		data = map[string]interface{}{}
	}
	delete(data, "claims")
	claims := map[string]interface{}{}
	if uc, ok := userInfo["claims"].(map[string]interface{}); ok {
		claims = deepCopyMap(uc)
	}
	data["claims"] = claims
	if sub, ok := data["sub"].(string); !ok || sub == "" {
		return nil, NewError(KindConsistency, WithOp(op), WithMsg("merged claims have no subject"), WithWrap(ErrMissingSubject))
	}
	r := &Result{
		data:        data,
		claims:      Claims(claims),
		idToken:     newIDTokenClaims(idToken),
		accessToken: accessToken,
	}
	if userInfo != nil {
		r.userInfo = newUserInfoClaims(userInfo)
	}
	return r, nil
}

// HasError reports whether the provider ended the flow with an error
// response.
func (r *Result) HasError() bool { return r.errorCode != "" }

// ErrorCode returns the "error" parameter of the provider's error response.
func (r *Result) ErrorCode() string { return r.errorCode }

// ErrorDescription returns the optional "error_description" parameter of the
// provider's error response.
func (r *Result) ErrorDescription() string { return r.errorDescription }

func (r *Result) upstreamErr(op string) error {
	msg := r.errorCode
	if r.errorDescription != "" {
		msg = fmt.Sprintf("%s: %s", r.errorCode, r.errorDescription)
	}
	return NewError(KindUpstream, WithOp(op), WithMsg(msg), WithWrap(ErrUpstreamResponse))
}

// Subject returns the "sub" of the authenticated user.
func (r *Result) Subject() (string, error) {
	const op = "Result.Subject"
	if r.HasError() {
		return "", r.upstreamErr(op)
	}
	sub, ok := r.data["sub"].(string)
	if !ok || sub == "" {
		return "", NewError(KindConsistency, WithOp(op), WithWrap(ErrMissingSubject))
	}
	return sub, nil
}

// Data returns a copy of the merged claim set: the id_token fields with
// "claims" holding the userinfo claims.
func (r *Result) Data() (map[string]interface{}, error) {
	const op = "Result.Data"
	if r.HasError() {
		return nil, r.upstreamErr(op)
	}
	return deepCopyMap(r.data), nil
}

// Claims returns a copy of the userinfo claims. It is empty when userinfo
// wasn't fetched.
func (r *Result) Claims() (Claims, error) {
	const op = "Result.Claims"
	if r.HasError() {
		return nil, r.upstreamErr(op)
	}
	return Claims(deepCopyMap(r.claims)), nil
}

// JSON returns the merged claim set as JSON.
func (r *Result) JSON() (string, error) {
	const op = "Result.JSON"
	if r.HasError() {
		return "", r.upstreamErr(op)
	}
	b, err := json.Marshal(r.data)
	if err != nil {
		return "", NewError(KindInternal, WithOp(op), WithMsg(fmt.Sprintf("unable to encode claims: %s", err)))
	}
	return string(b), nil
}

// HasAccessToken reports whether the flow yielded an access token.
func (r *Result) HasAccessToken() bool { return r.accessToken != "" }

// AccessToken returns the access token of the flow.
func (r *Result) AccessToken() (AccessToken, error) {
	const op = "Result.AccessToken"
	if !r.HasAccessToken() {
		return "", NewError(KindValidation, WithOp(op), WithWrap(ErrNoAccessToken))
	}
	return r.accessToken, nil
}

// IDToken returns the typed claims of the flow's id_token.
func (r *Result) IDToken() (IDTokenClaims, error) {
	const op = "Result.IDToken"
	if r.HasError() {
		return IDTokenClaims{}, r.upstreamErr(op)
	}
	c := *r.idToken
	c.Audience = append([]string(nil), r.idToken.Audience...)
	c.Claims = Claims(deepCopyMap(r.idToken.Claims))
	return c, nil
}

// UserInfo returns the typed claims of the flow's userinfo token. ok is false
// when the flow yielded no access token and so no userinfo.
func (r *Result) UserInfo() (c UserInfoClaims, ok bool, err error) {
	const op = "Result.UserInfo"
	if r.HasError() {
		return UserInfoClaims{}, false, r.upstreamErr(op)
	}
	if r.userInfo == nil {
		return UserInfoClaims{}, false, nil
	}
	return UserInfoClaims{Subject: r.userInfo.Subject, Claims: Claims(deepCopyMap(r.userInfo.Claims))}, true, nil
}
