/*
Package session provides oidc.Store implementations which keep the state of
in-flight flows between the initiation and the callback of a flow.

Memory keeps sessions in process memory and suits a single instance relying
party. SQL keeps sessions in a database/sql table and is shared by every
instance of the relying party. Both hand out one oidc.Store per session id;
Cookies binds that session id to a browser cookie.

Example:

	db, err := sql.Open("sqlite", "file:rp.db")
	if err != nil {
		// handle error
	}
	backend, err := session.NewSQL(ctx, db)
	if err != nil {
		// handle error
	}
	cookies := &session.Cookies{Backend: backend, Secure: true}

	// cookies satisfies callback.SessionReader
	h, err := callback.AuthCode(ctx, collector, cookies, successFn, errorFn)
*/
package session
