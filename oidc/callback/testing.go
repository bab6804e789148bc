package callback

import (
	"encoding/json"
	"net/http"

	"github.com/idtrust/rpflow/oidc"
)

// testSuccessFn is a test SuccessResponseFunc which writes the result's
// subject.
func testSuccessFn(_ string, r *oidc.Result, w http.ResponseWriter, _ *http.Request) {
	sub, err := r.Subject()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sub))
}

// testFailFn is a test ErrorResponseFunc
func testFailFn(_ string, r *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if e != nil {
		status := http.StatusInternalServerError
		switch oidc.KindOf(e) {
		case oidc.KindValidation:
			status = http.StatusBadRequest
		case oidc.KindProtocol, oidc.KindCrypto, oidc.KindConsistency:
			status = http.StatusForbidden
		}
		w.WriteHeader(status)
		j, _ := json.Marshal(&AuthenErrorResponse{
			Error:       "internal-callback-error",
			Description: e.Error(),
		})
		_, _ = w.Write(j)
		return
	}
	if r != nil {
		w.WriteHeader(http.StatusUnauthorized)
		j, _ := json.Marshal(r)
		_, _ = w.Write(j)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	j, _ := json.Marshal(&AuthenErrorResponse{
		Error: "unknown-callback-error",
	})
	_, _ = w.Write(j)
}
