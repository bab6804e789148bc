package oidc

import (
	"time"
)

// IDTokenClaims is the typed view of a validated id_token.
type IDTokenClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time

	// Nonce is empty for flows initiated by the provider's app.
	Nonce string

	// Claims is the id_token's own "claims" member. It is not part of the
	// merged claims of a Result.
	Claims Claims
}

// UserInfoClaims is the typed view of a validated userinfo token.
type UserInfoClaims struct {
	Subject string
	Claims  Claims
}

func newIDTokenClaims(raw map[string]interface{}) *IDTokenClaims {
	c := &IDTokenClaims{
		Subject:  stringClaim(raw, "sub"),
		Issuer:   stringClaim(raw, "iss"),
		Audience: audienceClaim(raw["aud"]),
		Expiry:   timeClaim(raw, "exp"),
		IssuedAt: timeClaim(raw, "iat"),
		Nonce:    stringClaim(raw, "nonce"),
		Claims:   Claims{},
	}
	if m, ok := raw["claims"].(map[string]interface{}); ok {
		c.Claims = Claims(deepCopyMap(m))
	}
	return c
}

func newUserInfoClaims(raw map[string]interface{}) *UserInfoClaims {
	c := &UserInfoClaims{Subject: stringClaim(raw, "sub"), Claims: Claims{}}
	if m, ok := raw["claims"].(map[string]interface{}); ok {
		c.Claims = Claims(deepCopyMap(m))
	}
	return c
}

func stringClaim(raw map[string]interface{}, name string) string {
	s, _ := raw[name].(string)
	return s
}

// timeClaim reads a NumericDate; the zero time when absent.
func timeClaim(raw map[string]interface{}, name string) time.Time {
	switch v := raw[name].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	default:
		return time.Time{}
	}
}

// audienceClaim reads "aud", a single string or an array of strings.
func audienceClaim(v interface{}) []string {
	switch a := v.(type) {
	case string:
		return []string{a}
	case []string:
		return append([]string(nil), a...)
	case []interface{}:
		aud := make([]string, 0, len(a))
		for _, e := range a {
			if s, ok := e.(string); ok {
				aud = append(aud, s)
			}
		}
		return aud
	default:
		return nil
	}
}
