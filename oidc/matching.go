package oidc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/idtrust/rpflow/jwt"
)

// verifiedClaimSuffix marks the claims which the provider asserts after
// verifying them (for example "email_verified").
const verifiedClaimSuffix = "_verified"

// MatchingValidator cross-checks the userinfo granted by the provider against
// the claims requested when the flow was initiated.
type MatchingValidator struct {
	fetcher RequestURIFetcher
	keySet  jwt.KeySet
}

// NewMatchingValidator creates a MatchingValidator. fetcher re-fetches request
// objects served at a request URI and keySet, holding the relying party's
// public signing key, authenticates them.
func NewMatchingValidator(fetcher RequestURIFetcher, keySet jwt.KeySet) (*MatchingValidator, error) {
	const op = "oidc.NewMatchingValidator"
	switch {
	case fetcher == nil:
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("request uri fetcher is nil"), WithWrap(ErrNilParameter))
	case keySet == nil:
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("key set is nil"), WithWrap(ErrNilParameter))
	}
	return &MatchingValidator{fetcher: fetcher, keySet: keySet}, nil
}

// Validate resolves the claims requested by the flow and checks userInfo
// against them. Flows whose request object is encrypted are not checked.
func (m *MatchingValidator) Validate(ctx context.Context, fs *FlowState, userInfo map[string]interface{}) error {
	const op = "MatchingValidator.Validate"
	if err := fs.validateSource(); err != nil {
		return WrapError(err, WithOp(op))
	}
	requested := fs.RequestedClaims
	if fs.UsedRequestURI != "" {
		var err error
		if requested, err = (RequestURI{URI: fs.UsedRequestURI}).Claims(ctx, m.fetcher, m.keySet); err != nil {
			return WrapError(err, WithOp(op))
		}
	}
	switch rc := requested.(type) {
	case EncryptedClaims:
		return nil
	case KnownClaims:
		return WrapError(matchClaims(rc.Claims, userInfo), WithOp(op))
	default:
		return NewError(KindConsistency, WithOp(op), WithMsg(fmt.Sprintf("unknown requested claims %T", requested)), WithWrap(ErrInvalidFlowState))
	}
}

// matchClaims requires every essential "*_verified" claim requested for
// userinfo to be asserted true in the "claims" member of userInfo. Every
// failed claim is reported.
func matchClaims(requested, userInfo map[string]interface{}) error {
	const op = "oidc.matchClaims"
	reqUserInfo, _ := requested["userinfo"].(map[string]interface{})
	if len(reqUserInfo) == 0 {
		return nil
	}
	granted, _ := userInfo["claims"].(map[string]interface{})

	names := make([]string, 0, len(reqUserInfo))
	for name := range reqUserInfo {
		names = append(names, name)
	}
	sort.Strings(names)

	var result *multierror.Error
	for _, name := range names {
		if !strings.HasSuffix(name, verifiedClaimSuffix) || !isEssential(reqUserInfo[name]) {
			continue
		}
		if v, ok := granted[name].(bool); !ok || !v {
			result = multierror.Append(result, fmt.Errorf("essential claim %q is not asserted true", name))
		}
	}
	if result != nil {
		result.ErrorFormat = listErrorFormat
	}
	if err := result.ErrorOrNil(); err != nil {
		return NewError(KindProtocol, WithOp(op), WithMsg(err.Error()), WithWrap(ErrMatchingResponse))
	}
	return nil
}

func isEssential(request interface{}) bool {
	m, ok := request.(map[string]interface{})
	if !ok {
		return false
	}
	essential, _ := m["essential"].(bool)
	return essential
}

func listErrorFormat(es []error) string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
