/*
oidc is a package for the relying party side of an OpenID Connect
authorization code flow against a single provider, whose id_tokens and
userinfo responses are signed and then encrypted to the relying party.

Primary types provided by the package

* Config and ProviderConfig: the relying party's client registration and keys,
and the provider's endpoints and signing keys. There is no discovery, every
endpoint is configured.

* Initiator: starts a flow. It stores a fresh state, nonce and FlowState in the
user agent's session (a Store) and returns the URL of the authentication
request, whose claims travel in a RequestSource: a RequestObject signed by the
relying party, a prebuilt RequestObjectJWT, or a RequestURI the provider
fetches. Flows initiated by the provider's app go through PairingURL.

* Collector: handles the callback. It checks the state, exchanges the code,
decrypts and validates the id_token and the userinfo, checks that the
essential claims which were requested are asserted (matching response
validation) and assembles a Result. Whatever the outcome, the session is
cleared before Collect returns.

* Result: the subject and claims of the user, or the provider's error
response.

* Err and Kind: every error is classified by KindOf, so a caller can tell
a tampered or replayed callback (KindProtocol, KindCrypto, KindConsistency)
from bad input (KindValidation) and operational failures.

The oidc.callback package

The callback package provides http.HandlerFunc(s) for the login, pairing and
callback legs of a flow.

Examples

* A relying party serving login, pairing and callback with sqlite sessions:
oidc/examples/rp/
*/
package oidc
