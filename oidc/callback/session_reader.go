package callback

import (
	"net/http"

	"github.com/idtrust/rpflow/oidc"
)

// SessionReader defines an interface for finding the session of the user
// agent making a request.
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler. session.Cookies is the production
// implementation.
type SessionReader interface {
	// Read returns the oidc.Store of req's session. It may write headers to
	// w, a cookie binding a new session for example.
	Read(w http.ResponseWriter, req *http.Request) (oidc.Store, error)
}

// SingleSessionReader implements the SessionReader interface for a single
// session, whatever the request. It is as concurrently safe as its Store.
type SingleSessionReader struct {
	Store oidc.Store
}

// Read returns the reader's Store, or an error when it is nil.
func (s *SingleSessionReader) Read(_ http.ResponseWriter, _ *http.Request) (oidc.Store, error) {
	if s.Store == nil {
		return nil, oidc.ErrNilParameter
	}
	return s.Store, nil
}
