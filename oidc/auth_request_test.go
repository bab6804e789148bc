package oidc

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthRequest(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ar := &AuthRequest{
		clientID:     testClientID,
		state:        "st_1",
		nonce:        "n_1",
		display:      "page",
		uiLocales:    "hu en",
		ext:          "e30",
		requestParam: paramRequestURI,
		requestValue: "https://rp.example.com/request.jwt",
	}
	assert.Equal(testClientID, ar.ClientID())
	assert.Equal("st_1", ar.State())
	assert.Equal("n_1", ar.Nonce())
	name, value := ar.RequestParam()
	assert.Equal(paramRequestURI, name)
	assert.Equal("https://rp.example.com/request.jwt", value)

	want := url.Values{
		"response_type": {"code"},
		"client_id":     {testClientID},
		"scope":         {"openid"},
		"state":         {"st_1"},
		"nonce":         {"n_1"},
		"display":       {"page"},
		"ui_locales":    {"hu en"},
		"ext":           {"e30"},
		"request_uri":   {"https://rp.example.com/request.jwt"},
	}
	v := ar.Values()
	assert.Equal(want, v)

	// the request is not changed through its values
	v.Set("state", "forged")
	assert.Equal("st_1", ar.Values().Get("state"))

	got, err := ar.URL("https://idp.example.com/auth?tenant=hu&state=old")
	require.NoError(err)
	u, err := url.Parse(got)
	require.NoError(err)
	assert.Equal("idp.example.com", u.Host)
	assert.Equal("/auth", u.Path)
	assert.Equal("hu", u.Query().Get("tenant"))
	assert.Equal("st_1", u.Query().Get("state"))

	_, err = ar.URL("://bad")
	assert.Error(err)
}
