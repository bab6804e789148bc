package oidc

import (
	"context"
	"crypto/subtle"
)

const (
	statePrefix = "st"
	noncePrefix = "n"
)

// StateNonceHandler issues and checks the one-time state and nonce of a flow.
// Both are kept in the session Store; a StateNonceHandler holds no data of
// its own and is safe for concurrent use.
type StateNonceHandler struct{}

// GenerateState issues a new state for the session, replacing any state
// previously issued.
func (StateNonceHandler) GenerateState(ctx context.Context, store Store) (string, error) {
	const op = "StateNonceHandler.GenerateState"
	return generateAndStore(ctx, store, op, statePrefix, storeKeyState)
}

// GenerateNonce issues a new nonce for the session, replacing any nonce
// previously issued.
func (StateNonceHandler) GenerateNonce(ctx context.Context, store Store) (string, error) {
	const op = "StateNonceHandler.GenerateNonce"
	return generateAndStore(ctx, store, op, noncePrefix, storeKeyNonce)
}

// ValidateState checks received against the state issued for the session.
// The stored state is consumed by the check whatever its outcome, so a state
// validates at most once.
func (StateNonceHandler) ValidateState(ctx context.Context, store Store, received string) error {
	const op = "StateNonceHandler.ValidateState"
	stored, ok, err := storeGet(ctx, store, op, storeKeyState)
	if err != nil {
		return err
	}
	if err := storeSet(ctx, store, op, storeKeyState, ""); err != nil {
		return err
	}
	if !ok || stored == "" || received == "" {
		return NewError(KindProtocol, WithOp(op), WithMsg("no state issued for session or state not received"), WithWrap(ErrInvalidState))
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(received)) != 1 {
		return NewError(KindProtocol, WithOp(op), WithMsg("state does not match"), WithWrap(ErrInvalidState))
	}
	return nil
}

// ValidateNonce checks the nonce of an id_token against the nonce issued for
// the session. Externally initiated flows never issue a nonce; for them the
// check is skipped when the session holds none.
func (StateNonceHandler) ValidateNonce(ctx context.Context, store Store, received string, externallyInitiated bool) error {
	const op = "StateNonceHandler.ValidateNonce"
	stored, ok, err := storeGet(ctx, store, op, storeKeyNonce)
	if err != nil {
		return err
	}
	if !ok || stored == "" {
		if externallyInitiated {
			return nil
		}
		return NewError(KindProtocol, WithOp(op), WithMsg("no nonce issued for session"), WithWrap(ErrInvalidNonce))
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(received)) != 1 {
		return NewError(KindProtocol, WithOp(op), WithMsg("id_token nonce does not match"), WithWrap(ErrInvalidNonce))
	}
	return nil
}

func generateAndStore(ctx context.Context, store Store, op, prefix, key string) (string, error) {
	v, err := NewID(prefix)
	if err != nil {
		return "", WrapError(err, WithOp(op))
	}
	if err := storeSet(ctx, store, op, key, v); err != nil {
		return "", err
	}
	return v, nil
}
