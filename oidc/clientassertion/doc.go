/*
Package clientassertion builds the JWTs a relying party authenticates itself
with at the token endpoint instead of client_secret_basic: private_key_jwt
(signed with the relying party's RSA key) or client_secret_jwt (HMAC with the
client secret). See https://oauth.net/private-key-jwt/

Example usage:

	a, err := clientassertion.NewJWTWithKey("client-id", []string{tokenEndpoint}, cfg.SigningKey)
	if err != nil {
		// handle error
	}
	collector, err := oidc.NewCollector(cfg, oidc.WithClientAssertionJWT(a))
*/
package clientassertion
