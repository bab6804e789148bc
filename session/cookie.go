package session

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/idtrust/rpflow/oidc"
	"github.com/idtrust/rpflow/sdk/id"
)

// DefaultCookieName is the cookie Cookies keeps the session id in.
const DefaultCookieName = "rpflow_session"

const sessionIDPrefix = "s"

// sessionIDRx matches the ids generated by Read.
var sessionIDRx = regexp.MustCompile(fmt.Sprintf(`^%s_[0-9A-Za-z]{%d}$`, sessionIDPrefix, id.DefaultLength))

// Backend hands out the oidc.Store of a session.
type Backend interface {
	Store(sessionID string) oidc.Store
}

// Cookies binds a browser to a Backend session through a session id cookie.
// A browser without a cookie, or with one not shaped like a generated id,
// gets a new random session id.
type Cookies struct {
	Backend Backend

	// Name of the cookie, DefaultCookieName when empty.
	Name string

	// Secure marks the cookie https only.
	Secure bool
}

// Read returns the oidc.Store of the browser's session and sets the session
// cookie on w when the browser has none. It satisfies callback.SessionReader.
func (c *Cookies) Read(w http.ResponseWriter, req *http.Request) (oidc.Store, error) {
	const op = "Cookies.Read"
	switch {
	case c.Backend == nil:
		return nil, oidc.NewError(oidc.KindConfiguration, oidc.WithOp(op), oidc.WithMsg("backend is nil"), oidc.WithWrap(oidc.ErrNilParameter))
	case req == nil:
		return nil, oidc.NewError(oidc.KindValidation, oidc.WithOp(op), oidc.WithMsg("request is nil"), oidc.WithWrap(oidc.ErrNilParameter))
	}
	name := c.Name
	if name == "" {
		name = DefaultCookieName
	}
	if ck, err := req.Cookie(name); err == nil && sessionIDRx.MatchString(ck.Value) {
		return c.Backend.Store(ck.Value), nil
	}
	sessionID, err := id.New(sessionIDPrefix)
	if err != nil {
		return nil, oidc.NewError(oidc.KindInternal, oidc.WithOp(op), oidc.WithMsg("unable to generate session id"), oidc.WithWrap(err))
	}
	// Lax: the provider's redirect back to the callback is a cross site
	// top level navigation.
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Backend.Store(sessionID), nil
}
