package callback

import (
	"context"
	"net/http"

	"github.com/idtrust/rpflow/oidc"
)

// Login creates a handler which starts a flow: it reads the display,
// ui_locales and ext query parameters, stores the new flow in the session
// read by sr and redirects the user agent to the provider's authorization
// endpoint. Requests other than GET are rejected.
func Login(ctx context.Context, i *oidc.Initiator, sr SessionReader, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.Login"
	if err := checkHandlerParams(op, i == nil, sr, eFn); err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if err := checkMethod(op, req); err != nil {
			eFn("", nil, err, w, req)
			return
		}
		params, err := oidc.ParseAuthParams(req)
		if err != nil {
			eFn("", nil, oidc.WrapError(err, oidc.WithOp(op)), w, req)
			return
		}
		store, err := sr.Read(w, req)
		if err != nil {
			eFn("", nil, sessionErr(op, err), w, req)
			return
		}
		authURL, err := i.AuthURL(ctx, store, params)
		if err != nil {
			eFn("", nil, oidc.WrapError(err, oidc.WithOp(op)), w, req)
			return
		}
		redirect(w, req, authURL)
	}, nil
}

// Pairing creates a handler for flows initiated by the provider's app: it
// reads the pairing_nonce, request_uri and redirect_uri query parameters,
// stores the new flow in the session read by sr and redirects the user agent
// to the provider's authorization endpoint. Requests other than GET are
// rejected.
func Pairing(ctx context.Context, i *oidc.Initiator, sr SessionReader, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.Pairing"
	if err := checkHandlerParams(op, i == nil, sr, eFn); err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if err := checkMethod(op, req); err != nil {
			eFn("", nil, err, w, req)
			return
		}
		store, err := sr.Read(w, req)
		if err != nil {
			eFn("", nil, sessionErr(op, err), w, req)
			return
		}
		pairingURL, err := i.PairingURL(ctx, store, oidc.ParsePairingParams(req))
		if err != nil {
			eFn("", nil, oidc.WrapError(err, oidc.WithOp(op)), w, req)
			return
		}
		redirect(w, req, pairingURL)
	}, nil
}

func checkMethod(op string, req *http.Request) error {
	if req.Method != http.MethodGet {
		return oidc.NewError(oidc.KindProtocol, oidc.WithOp(op), oidc.WithMsg(req.Method), oidc.WithWrap(oidc.ErrUnexpectedMethod))
	}
	return nil
}
