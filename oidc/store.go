package oidc

import (
	"context"
	"fmt"
)

// Store is a key-value store scoped to one user's session. The engine keeps
// the per-flow state (state, nonce and FlowState) in it between the
// authentication request and the callback.
//
// Implementations must make each operation atomic with respect to the
// session it is scoped to.
type Store interface {
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value stored under key. ok is false when the key is not
	// set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// RemoveAll removes every key the engine stored for the session.
	RemoveAll(ctx context.Context) error
}

// storeKeyPrefix prefixes every key the engine writes.
const storeKeyPrefix = "rpflow."

const (
	storeKeyState               = storeKeyPrefix + "state"
	storeKeyNonce               = storeKeyPrefix + "nonce"
	storeKeyExternallyInitiated = storeKeyPrefix + "externally_initiated"
	storeKeyAppInitiated        = storeKeyPrefix + "app_initiated"
	storeKeyUsedRequestURI      = storeKeyPrefix + "used_request_uri"
	storeKeyUsedRedirectURI     = storeKeyPrefix + "used_redirect_uri"
	storeKeyRequestedClaims     = storeKeyPrefix + "requested_claims"
)

func storeGet(ctx context.Context, s Store, op, key string) (string, bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", false, NewError(KindInternal, WithOp(op), WithMsg("unable to read "+key), WithWrap(wrapStoreErr(err)))
	}
	return v, ok, nil
}

func storeSet(ctx context.Context, s Store, op, key, value string) error {
	if err := s.Set(ctx, key, value); err != nil {
		return NewError(KindInternal, WithOp(op), WithMsg("unable to write "+key), WithWrap(wrapStoreErr(err)))
	}
	return nil
}

func storeRemoveAll(ctx context.Context, s Store, op string) error {
	if err := s.RemoveAll(ctx); err != nil {
		return NewError(KindInternal, WithOp(op), WithMsg("unable to clear session"), WithWrap(wrapStoreErr(err)))
	}
	return nil
}

func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreFailed, err)
}
