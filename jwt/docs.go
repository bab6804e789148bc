/*
Package jwt provides the JOSE capabilities of a relying party: verifying the
signature of a provider's JWTs with a KeySet (a remote JWKS or static PEM
keys), and signing request objects and decrypting JWE tokens with the relying
party's PrivateKey.
*/
package jwt
