// rpflow provides the relying party side of an OpenID Connect authorization
// code flow against a single provider which signs and then encrypts its
// id_tokens and userinfo responses.
//
// Packages:
//   - oidc: flow initiation, callback collection, token validation
//   - oidc/callback: http.HandlerFunc(s) for the login, pairing and callback legs
//   - oidc/clientassertion: private_key_jwt and client_secret_jwt assertions
//   - jwt: signature verification, request object signing, JWE decryption
//   - session: memory and SQL backed session stores
package rpflow
