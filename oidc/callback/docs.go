/*
callback is a package that provides the http.HandlerFunc(s) of a relying
party's flow: Login and Pairing send the user agent to the provider and
AuthCode handles the provider's redirect back to the relying party.

Every handler reads the session of the user agent through a SessionReader, so
the same flow state is seen by the initiating handler and by the callback.
*/
package callback
