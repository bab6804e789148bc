package callback

import (
	"context"
	"net/http"

	"github.com/idtrust/rpflow/oidc"
)

// AuthCode creates an authorization code callback handler which collects the
// response of the flow held in the session read by sr.
//
// The SuccessResponseFunc is used to create a response when the callback is
// successful. The ErrorResponseFunc is used to create a response when the
// provider returned an error response or the callback fails. The session is
// cleared before either func is called.
func AuthCode(ctx context.Context, c *oidc.Collector, sr SessionReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	if err := checkHandlerParams(op, c == nil, sr, eFn); err != nil {
		return nil, err
	}
	if sFn == nil {
		return nil, oidc.NewError(oidc.KindConfiguration, oidc.WithOp(op), oidc.WithMsg("success response func is nil"), oidc.WithWrap(oidc.ErrInvalidParameter))
	}
	return func(w http.ResponseWriter, req *http.Request) {
		reqState := req.URL.Query().Get("state")

		store, err := sr.Read(w, req)
		if err != nil {
			eFn(reqState, nil, sessionErr(op, err), w, req)
			return
		}
		result, err := c.Collect(ctx, store, req)
		if err != nil {
			eFn(reqState, nil, oidc.WrapError(err, oidc.WithOp(op)), w, req)
			return
		}
		if result.HasError() {
			eFn(reqState, &AuthenErrorResponse{
				Error:       result.ErrorCode(),
				Description: result.ErrorDescription(),
				Uri:         req.URL.Query().Get("error_uri"),
			}, nil, w, req)
			return
		}
		sFn(reqState, result, w, req)
	}, nil
}

func checkHandlerParams(op string, nilComponent bool, sr SessionReader, eFn ErrorResponseFunc) error {
	var msg string
	switch {
	case nilComponent:
		msg = "flow component is nil"
	case sr == nil:
		msg = "session reader is nil"
	case eFn == nil:
		msg = "error response func is nil"
	default:
		return nil
	}
	return oidc.NewError(oidc.KindConfiguration, oidc.WithOp(op), oidc.WithMsg(msg), oidc.WithWrap(oidc.ErrInvalidParameter))
}

func redirect(w http.ResponseWriter, req *http.Request, to string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, req, to, http.StatusFound)
}

func sessionErr(op string, err error) error {
	return oidc.NewError(oidc.KindInternal, oidc.WithOp(op), oidc.WithMsg("unable to read session"), oidc.WithWrap(err))
}
