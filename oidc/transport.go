package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// TokenExchanger exchanges an authorization code at the provider's token
// endpoint.
type TokenExchanger interface {
	Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error)
}

// UserInfoFetcher fetches the encrypted userinfo token for an access token.
type UserInfoFetcher interface {
	UserInfo(ctx context.Context, token AccessToken) (string, error)
}

// RequestURIFetcher fetches the request object served at a request URI.
type RequestURIFetcher interface {
	FetchRequestObject(ctx context.Context, uri string) (string, error)
}

// Transport is everything the Collector needs from the network.
type Transport interface {
	TokenExchanger
	UserInfoFetcher
	RequestURIFetcher
}

// maxResponseBytes caps the size of a provider response body.
const maxResponseBytes = 1 << 20

// ClientAssertion is a signed JWT which authenticates the relying party to
// the token endpoint, see package clientassertion.
type ClientAssertion interface {
	Serialize() (string, error)
}

// clientAssertionType is the client_assertion_type of a JWT assertion.
const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// HTTPTransport is the default Transport. It authenticates to the token
// endpoint with client_secret_basic, or with a client assertion when one is
// configured.
type HTTPTransport struct {
	cfg       *Config
	client    *http.Client
	assertion ClientAssertion
	logger    hclog.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a Transport for cfg's provider.
//
// Supported options: WithHTTPClient, WithClientAssertionJWT, WithLogger
func NewHTTPTransport(cfg *Config, opt ...Option) (*HTTPTransport, error) {
	const op = "oidc.NewHTTPTransport"
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	opts := getTransportOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = cfg.HTTPClient(); err != nil {
			return nil, WrapError(err, WithOp(op))
		}
	}
	return &HTTPTransport{cfg: cfg, client: client, assertion: opts.withClientAssertion, logger: opts.withLogger}, nil
}

type tokenEndpointResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ServerTime  int64  `json:"server_time"`
}

type errorEndpointResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange implements TokenExchanger. The provider's clock is read from the
// "server_time" member of the response (unix seconds); the local clock is
// used when it is missing.
func (t *HTTPTransport) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	const op = "HTTPTransport.Exchange"
	if req.Code == "" {
		return nil, NewError(KindValidation, WithOp(op), WithMsg("code is empty"), WithWrap(ErrInvalidParameter))
	}
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {req.Code},
		"redirect_uri": {req.RedirectURI},
	}
	if req.RequestURI != "" {
		form.Set("request_uri", req.RequestURI)
	}
	if t.assertion != nil {
		a, err := t.assertion.Serialize()
		if err != nil {
			return nil, NewError(KindInternal, WithOp(op), WithMsg("unable to serialize client assertion"), WithWrap(err))
		}
		form.Set("client_id", t.cfg.ClientID)
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", a)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Provider.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewError(KindInternal, WithOp(op), WithMsg("unable to create token request"), WithWrap(err))
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if t.assertion == nil {
		httpReq.SetBasicAuth(url.QueryEscape(t.cfg.ClientID), url.QueryEscape(string(t.cfg.ClientSecret)))
	}

	body, err := doRequest(t.client, httpReq, op, ErrTokenExchangeFailed)
	if err != nil {
		return nil, err
	}
	var tr tokenEndpointResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg(fmt.Sprintf("unable to decode token response: %s", err)), WithWrap(ErrTokenExchangeFailed))
	}
	if tr.IDToken == "" {
		return nil, NewError(KindProtocol, WithOp(op), WithWrap(ErrMissingIdToken))
	}
	resp := &TokenResponse{
		IDToken:     IDToken(tr.IDToken),
		AccessToken: AccessToken(tr.AccessToken),
		ServerTime:  time.Now(),
	}
	if tr.ServerTime > 0 {
		resp.ServerTime = time.Unix(tr.ServerTime, 0)
	}
	t.logger.Debug("exchanged authorization code", "has_access_token", resp.HasAccessToken())
	return resp, nil
}

// UserInfo implements UserInfoFetcher. The response body is the compact
// serialized userinfo token.
func (t *HTTPTransport) UserInfo(ctx context.Context, token AccessToken) (string, error) {
	const op = "HTTPTransport.UserInfo"
	if token == "" {
		return "", NewError(KindValidation, WithOp(op), WithMsg("access token is empty"), WithWrap(ErrInvalidParameter))
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(token),
		TokenType:   "Bearer",
	}))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.Provider.UserInfoEndpoint, nil)
	if err != nil {
		return "", NewError(KindInternal, WithOp(op), WithMsg("unable to create userinfo request"), WithWrap(err))
	}
	httpReq.Header.Set("Accept", "application/jwt")
	body, err := doRequest(client, httpReq, op, ErrUserInfoFailed)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// FetchRequestObject implements RequestURIFetcher.
func (t *HTTPTransport) FetchRequestObject(ctx context.Context, uri string) (string, error) {
	const op = "HTTPTransport.FetchRequestObject"
	if err := validateEndpoint(uri); err != nil {
		return "", NewError(KindValidation, WithOp(op), WithMsg(fmt.Sprintf("request uri %q is invalid: %s", uri, err)), WithWrap(ErrInvalidParameter))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", NewError(KindInternal, WithOp(op), WithMsg("unable to create request uri request"), WithWrap(err))
	}
	body, err := doRequest(t.client, httpReq, op, ErrRequestURIFailed)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func doRequest(client *http.Client, req *http.Request, op string, sentinel error) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg(fmt.Sprintf("request to %s failed: %s", req.URL.Host, err)), WithWrap(sentinel))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg(fmt.Sprintf("unable to read response body: %s", err)), WithWrap(sentinel))
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		var e errorEndpointResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = fmt.Sprintf("%s: %s %s", msg, e.Error, e.ErrorDescription)
		}
		return nil, NewError(KindProtocol, WithOp(op), WithMsg(strings.TrimSpace(msg)), WithWrap(sentinel))
	}
	return body, nil
}

// transportOptions is the set of available options for HTTPTransport
type transportOptions struct {
	withHTTPClient      *http.Client
	withClientAssertion ClientAssertion
	withLogger          hclog.Logger
}

// transportDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func transportDefaults() transportOptions {
	return transportOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getTransportOpts gets the defaults and applies the opt overrides passed in.
func getTransportOpts(opt ...Option) transportOptions {
	opts := transportDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithHTTPClient provides an optional http client for HTTPTransport.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok && c != nil {
			o.withHTTPClient = c
		}
	}
}

// WithClientAssertionJWT makes HTTPTransport authenticate to the token
// endpoint with a fresh serialization of a for every exchange
// (private_key_jwt or client_secret_jwt) instead of client_secret_basic.
func WithClientAssertionJWT(a ClientAssertion) Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok && a != nil {
			o.withClientAssertion = a
		}
	}
}
