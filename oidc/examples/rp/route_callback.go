package main

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/idtrust/rpflow/oidc"
	"github.com/idtrust/rpflow/oidc/callback"
)

func successFn(logger hclog.Logger) callback.SuccessResponseFunc {
	return func(state string, r *oidc.Result, w http.ResponseWriter, req *http.Request) {
		data, err := r.JSON()
		if err != nil {
			logger.Error("unable to render result", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sub, _ := r.Subject()
		logger.Info("user authenticated", "sub", sub)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(data)); err != nil {
			logger.Error("error writing successful response", "error", err)
		}
	}
}

func failedFn(logger hclog.Logger) callback.ErrorResponseFunc {
	const op = "failedFn"
	return func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		var (
			responseErr error
			status      int
		)
		switch {
		case e != nil:
			logger.Warn("flow failed", "kind", oidc.KindOf(e).String(), "error", e)
			responseErr = e
			switch oidc.KindOf(e) {
			case oidc.KindValidation:
				status = http.StatusBadRequest
			case oidc.KindProtocol, oidc.KindCrypto, oidc.KindConsistency:
				status = http.StatusForbidden
			default:
				status = http.StatusInternalServerError
			}
		case r != nil:
			logger.Info("provider returned an error", "error", r.Error, "description", r.Description)
			responseErr = fmt.Errorf("%s: error from provider: %s %s", op, r.Error, r.Description)
			status = http.StatusUnauthorized
		default:
			responseErr = fmt.Errorf("%s: unknown error from callback", op)
			status = http.StatusInternalServerError
		}
		http.Error(w, responseErr.Error(), status)
	}
}
