package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestedClaims is what the relying party knows about the claims it
// requested for a flow. It is one of KnownClaims or EncryptedClaims; a nil
// RequestedClaims means the requested claims are not held locally (the flow
// used a request URI).
type RequestedClaims interface {
	isRequestedClaims()
}

// KnownClaims holds the "claims" member of the request object sent to the
// provider.
type KnownClaims struct {
	Claims map[string]interface{}
}

// EncryptedClaims marks a flow whose request object is opaque to the relying
// party. Matching response validation is skipped for such flows and the
// caller is responsible for checking the granted claims.
type EncryptedClaims struct{}

func (KnownClaims) isRequestedClaims()     {}
func (EncryptedClaims) isRequestedClaims() {}

// FlowState is the per-flow data kept in the session Store between the
// authentication request and the callback.
type FlowState struct {
	// ExternallyInitiated is true for flows started by the app pairing
	// endpoint.
	ExternallyInitiated bool

	// AppInitiated is true for app pairing flows, false for flows started
	// with an authentication request.
	AppInitiated bool

	// UsedRedirectURI is the redirect URI the flow was started with.
	UsedRedirectURI string

	// UsedRequestURI is the request URI of the flow. Empty when the request
	// object was sent by value.
	UsedRequestURI string

	// RequestedClaims is set when the request object was sent by value.
	RequestedClaims RequestedClaims
}

// validateSource enforces that exactly one of UsedRequestURI and
// RequestedClaims is set.
func (s *FlowState) validateSource() error {
	const op = "FlowState.validateSource"
	hasURI := s.UsedRequestURI != ""
	hasClaims := s.RequestedClaims != nil
	if hasURI == hasClaims {
		return NewError(KindConsistency, WithOp(op), WithMsg("exactly one of requested claims and used request uri must be set"), WithWrap(ErrInvalidFlowState))
	}
	return nil
}

type requestedClaimsJSON struct {
	Encrypted bool                   `json:"encrypted,omitempty"`
	Claims    map[string]interface{} `json:"claims,omitempty"`
}

func encodeRequestedClaims(rc RequestedClaims) (string, error) {
	var v requestedClaimsJSON
	switch c := rc.(type) {
	case KnownClaims:
		v.Claims = c.Claims
		if v.Claims == nil {
			v.Claims = map[string]interface{}{}
		}
	case EncryptedClaims:
		v.Encrypted = true
	default:
		return "", fmt.Errorf("unknown requested claims type %T", rc)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRequestedClaims(s string) (RequestedClaims, error) {
	var v requestedClaimsJSON
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if v.Encrypted {
		return EncryptedClaims{}, nil
	}
	if v.Claims == nil {
		v.Claims = map[string]interface{}{}
	}
	return KnownClaims{Claims: v.Claims}, nil
}

// saveFlowState writes s to the store. It refuses to write a FlowState which
// violates the request source invariant.
func saveFlowState(ctx context.Context, store Store, s *FlowState) error {
	const op = "oidc.saveFlowState"
	if err := s.validateSource(); err != nil {
		return WrapError(err, WithOp(op))
	}
	if err := storeSet(ctx, store, op, storeKeyExternallyInitiated, strconv.FormatBool(s.ExternallyInitiated)); err != nil {
		return err
	}
	if err := storeSet(ctx, store, op, storeKeyAppInitiated, strconv.FormatBool(s.AppInitiated)); err != nil {
		return err
	}
	if err := storeSet(ctx, store, op, storeKeyUsedRedirectURI, s.UsedRedirectURI); err != nil {
		return err
	}
	if s.UsedRequestURI != "" {
		if err := storeSet(ctx, store, op, storeKeyUsedRequestURI, s.UsedRequestURI); err != nil {
			return err
		}
	}
	if s.RequestedClaims != nil {
		enc, err := encodeRequestedClaims(s.RequestedClaims)
		if err != nil {
			return NewError(KindInternal, WithOp(op), WithMsg(fmt.Sprintf("unable to encode requested claims: %s", err)))
		}
		if err := storeSet(ctx, store, op, storeKeyRequestedClaims, enc); err != nil {
			return err
		}
	}
	return nil
}

// loadFlowState reads the FlowState of the session. Missing keys leave the
// corresponding fields at their zero value; callers decide which fields are
// required.
func loadFlowState(ctx context.Context, store Store) (*FlowState, error) {
	const op = "oidc.loadFlowState"
	s := &FlowState{}

	readBool := func(key string) (bool, error) {
		v, ok, err := storeGet(ctx, store, op, key)
		if err != nil || !ok || v == "" {
			return false, err
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, NewError(KindConsistency, WithOp(op), WithMsg(fmt.Sprintf("%s is not a bool", key)), WithWrap(ErrInvalidFlowState))
		}
		return b, nil
	}

	var err error
	if s.ExternallyInitiated, err = readBool(storeKeyExternallyInitiated); err != nil {
		return nil, err
	}
	if s.AppInitiated, err = readBool(storeKeyAppInitiated); err != nil {
		return nil, err
	}
	if s.UsedRedirectURI, _, err = storeGet(ctx, store, op, storeKeyUsedRedirectURI); err != nil {
		return nil, err
	}
	if s.UsedRequestURI, _, err = storeGet(ctx, store, op, storeKeyUsedRequestURI); err != nil {
		return nil, err
	}
	enc, ok, err := storeGet(ctx, store, op, storeKeyRequestedClaims)
	if err != nil {
		return nil, err
	}
	if ok && enc != "" {
		rc, err := decodeRequestedClaims(enc)
		if err != nil {
			return nil, NewError(KindConsistency, WithOp(op), WithMsg(fmt.Sprintf("unable to decode requested claims: %s", err)), WithWrap(ErrInvalidFlowState))
		}
		s.RequestedClaims = rc
	}
	return s, nil
}
