package oidc

import (
	"fmt"

	"github.com/idtrust/rpflow/sdk/id"
)

// NewID generates a ID with an optional prefix. The ID generated is suitable
// for a state, a nonce or a request object jti.
func NewID(optionalPrefix string) (string, error) {
	const op = "oidc.NewID"
	id, err := id.New(optionalPrefix)
	if err != nil {
		return "", NewError(KindInternal, WithOp(op), WithMsg(fmt.Sprintf("unable to generate id: %s", err)), WithWrap(ErrIdGeneratorFailed))
	}
	return id, nil
}
