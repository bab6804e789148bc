package oidc

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/idtrust/rpflow/jwt"
	strutils "github.com/idtrust/rpflow/sdk/strutils"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local TLS identity provider which makes writing tests
// much easier. It issues id_tokens and userinfo tokens signed with its own
// RSA key and encrypted to the relying party's public key, and it serves
// request objects for request URI flows.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	expectedAuthCode    string
	expectedAuthNonce   string
	replySubject        string
	userInfoSubject     string
	replyUserInfoClaims map[string]interface{}
	customClaims        map[string]interface{}
	customAudience      string
	omitIDToken         bool
	omitAccessToken     bool
	serverTime          time.Time
	tokenLifetime       time.Duration
	accessToken         string
	rpEncryptionKey     *rsa.PublicKey
	requestObjects      map[string]string
	requestFetches      int
	tokenRequests       []url.Values

	signingPublicKey  string
	signingPrivateKey string

	t *testing.T
}

// Stop stops the provider's http server.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider. The provider is
// stopped when the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t: t,
		allowedRedirectURIs: []string{
			"https://example.com/callback",
		},
		replySubject: "user-42",
		replyUserInfoClaims: map[string]interface{}{
			"email":          "alice@example.com",
			"email_verified": true,
		},
		tokenLifetime:  5 * time.Minute,
		accessToken:    "at_" + strings.Repeat("x", 16),
		requestObjects: map[string]string{},
	}
	p.signingPublicKey, p.signingPrivateKey = TestGenerateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientCreds is for configuring the client information required for the
// token endpoint.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code the token endpoint accepts.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce embedded in the id_tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs configures the redirect URIs the token endpoint
// accepts.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the sub of the id_tokens and, unless overridden with
// SetUserInfoSubject, of userinfo.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetUserInfoSubject overrides the sub of userinfo.
func (p *TestProvider) SetUserInfoSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoSubject = sub
}

// SetUserInfoClaims configures the "claims" member of userinfo; nil omits it.
func (p *TestProvider) SetUserInfoClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserInfoClaims = claims
}

// SetCustomClaims configures additional claims of the id_tokens.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience overrides the aud of the tokens, the default is the
// client id.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// OmitIDTokens makes the token endpoint reply without an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitAccessToken makes the token endpoint reply without an access_token.
func (p *TestProvider) OmitAccessToken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAccessToken = true
}

// SetServerTime pins the provider's clock, which is reported as server_time
// and used for iat and exp.
func (p *TestProvider) SetServerTime(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serverTime = t
}

// SetRelyingPartyEncryptionKey configures the key tokens are encrypted to.
func (p *TestProvider) SetRelyingPartyEncryptionKey(k *rsa.PublicKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rpEncryptionKey = k
}

// SetRequestObject serves token at the returned request URI.
func (p *TestProvider) SetRequestObject(name, token string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestObjects[name] = token
	return p.Addr() + "/requests/" + url.PathEscape(name)
}

// RequestObjectFetches returns how many times request objects were fetched.
func (p *TestProvider) RequestObjectFetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestFetches
}

// TokenRequests returns the forms posted to the token endpoint.
func (p *TestProvider) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenRequests...)
}

// AccessToken returns the access token the provider issues.
func (p *TestProvider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessToken
}

// Addr returns the provider's address, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the CA cert of the provider's TLS certificate.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the provider's PEM encoded signing keys.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.signingPublicKey, p.signingPrivateKey
}

// ProviderConfig returns a ProviderConfig for the provider, using its JWKS
// endpoint.
func (p *TestProvider) ProviderConfig() *ProviderConfig {
	p.t.Helper()
	pc, err := NewProviderConfig(p.Addr(), p.Addr()+"/auth", p.Addr()+"/token", p.Addr()+"/userinfo", WithProviderJWKSURL(p.Addr()+"/certs"))
	require.NoError(p.t, err)
	return pc
}

// TestConfig returns a relying party Config registered with the provider: its
// client creds, redirect URI and encryption key are configured on p.
func (p *TestProvider) TestConfig() *Config {
	p.t.Helper()
	const (
		clientID     = "test-rp"
		clientSecret = "test-rp-secret"
		redirectURL  = "https://example.com/callback"
	)
	key := TestGeneratePrivateKey(p.t)
	cfg, err := NewConfig(clientID, clientSecret, redirectURL, p.ProviderConfig(), WithSigningKey(key), WithProviderCA(p.CACert()))
	require.NoError(p.t, err)
	p.SetClientCreds(clientID, clientSecret)
	p.SetAllowedRedirectURIs([]string{redirectURL})
	p.SetRelyingPartyEncryptionKey(key.Public())
	return cfg
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(&body)
}

func (p *TestProvider) now() time.Time {
	if !p.serverTime.IsZero() {
		return p.serverTime
	}
	return time.Now()
}

// issue signs claims and encrypts them to the relying party.
func (p *TestProvider) issue(claims josejwt.Claims, privateClaims map[string]interface{}) string {
	p.t.Helper()
	require.NotNil(p.t, p.rpEncryptionKey, "relying party encryption key is not set")
	signed := TestSignJWT(p.t, p.signingPrivateKey, claims, privateClaims)
	return TestEncryptJWE(p.t, p.rpEncryptionKey, signed)
}

func (p *TestProvider) audience() josejwt.Audience {
	if p.customAudience != "" {
		return josejwt.Audience{p.customAudience}
	}
	return josejwt.Audience{p.clientID}
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	switch {
	case req.URL.Path == "/auth":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		if n := qv.Get("nonce"); n != "" {
			p.expectedAuthNonce = n
		}
		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" && len(p.allowedRedirectURIs) > 0 {
			redirectURI = p.allowedRedirectURIs[0]
		}
		if p.expectedAuthCode == "" {
			http.Redirect(w, req, redirectURI+"?state="+url.QueryEscape(qv.Get("state"))+"&error=access_denied", http.StatusFound)
			return
		}
		http.Redirect(w, req, redirectURI+"?state="+url.QueryEscape(qv.Get("state"))+"&code="+url.QueryEscape(p.expectedAuthCode), http.StatusFound)

	case req.URL.Path == "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, testJWKS(p.t, p.signingPublicKey))

	case req.URL.Path == "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := req.ParseForm(); err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		p.tokenRequests = append(p.tokenRequests, req.PostForm)

		id, secret, ok := req.BasicAuth()
		if ok {
			id, _ = url.QueryUnescape(id)
			secret, _ = url.QueryUnescape(secret)
		}
		switch {
		case !ok || id != p.clientID || secret != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
			return
		case req.PostForm.Get("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !strutils.StrListContains(p.allowedRedirectURIs, req.PostForm.Get("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case p.expectedAuthCode == "" || req.PostForm.Get("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}

		now := p.now()
		stdClaims := josejwt.Claims{
			Subject:  p.replySubject,
			Issuer:   p.Addr(),
			IssuedAt: josejwt.NewNumericDate(now),
			Expiry:   josejwt.NewNumericDate(now.Add(p.tokenLifetime)),
			Audience: p.audience(),
		}
		privateClaims := map[string]interface{}{}
		if p.expectedAuthNonce != "" {
			privateClaims["nonce"] = p.expectedAuthNonce
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}

		reply := struct {
			AccessToken string `json:"access_token,omitempty"`
			TokenType   string `json:"token_type"`
			IDToken     string `json:"id_token,omitempty"`
			ServerTime  int64  `json:"server_time"`
		}{
			TokenType:  "Bearer",
			ServerTime: now.Unix(),
		}
		if !p.omitIDToken {
			reply.IDToken = p.issue(stdClaims, privateClaims)
		}
		if !p.omitAccessToken {
			reply.AccessToken = p.accessToken
		}
		_ = p.writeJSON(w, &reply)

	case req.URL.Path == "/userinfo":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if req.Header.Get("Authorization") != "Bearer "+p.accessToken {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_token", "")
			return
		}
		sub := p.replySubject
		if p.userInfoSubject != "" {
			sub = p.userInfoSubject
		}
		privateClaims := map[string]interface{}{}
		if p.replyUserInfoClaims != nil {
			privateClaims["claims"] = p.replyUserInfoClaims
		}
		token := p.issue(josejwt.Claims{
			Subject:  sub,
			Issuer:   p.Addr(),
			Audience: p.audience(),
			Expiry:   josejwt.NewNumericDate(p.now().Add(p.tokenLifetime)),
		}, privateClaims)
		w.Header().Set("Content-Type", "application/jwt")
		_, _ = w.Write([]byte(token))

	case strings.HasPrefix(req.URL.Path, "/requests/"):
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		name, _ := url.PathUnescape(strings.TrimPrefix(req.URL.Path, "/requests/"))
		token, ok := p.requestObjects[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		p.requestFetches++
		w.Header().Set("Content-Type", "application/jwt")
		_, _ = w.Write([]byte(token))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	pub, err := jwt.ParsePublicKeyPEM([]byte(pubKey))
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				Algorithm: string(jose.RS256),
				Use:       "sig",
			},
		},
	}
}
