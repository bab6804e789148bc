package oidc

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/idtrust/rpflow/jwt"
)

// Collector handles the callback of a flow: it validates the callback,
// exchanges the authorization code and reconciles the id_token and userinfo
// into a Result. Whatever the outcome, the session is cleared before Collect
// returns.
type Collector struct {
	cfg       *Config
	transport Transport
	validator *TokenValidator
	matcher   *MatchingValidator
	matching  bool
	nonces    StateNonceHandler
	logger    hclog.Logger

	mu sync.Mutex

	// backgroundCtx is the context used by the collector for background
	// activities like refreshing the provider's JWKS.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewCollector creates a Collector for cfg's provider.
//
// See Collector.Done() which must be called to release collector resources.
//
// Supported options: WithMatchingResponseValidation, WithTransport,
// WithProviderKeySet, WithLogger, WithNow, WithClockSkew, and the
// HTTPTransport options WithHTTPClient and WithClientAssertionJWT when no
// Transport is provided.
func NewCollector(cfg *Config, opt ...Option) (*Collector, error) {
	const op = "oidc.NewCollector"
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	opts := getCollectorOpts(opt...)

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Collector with its background ctx/cancel will allow
	// us to use c.Done() to release any resources when returning errors from
	// this function.
	c := &Collector{
		cfg:                 cfg,
		matching:            opts.withMatching,
		logger:              opts.withLogger,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	c.transport = opts.withTransport
	if c.transport == nil {
		t, err := NewHTTPTransport(cfg, opt...)
		if err != nil {
			c.Done()
			return nil, WrapError(err, WithOp(op))
		}
		c.transport = t
	}

	keySet := opts.withProviderKeySet
	if keySet == nil {
		ks, err := cfg.Provider.KeySet(c.backgroundCtx, cfg.ProviderCA)
		if err != nil {
			c.Done()
			return nil, WrapError(err, WithOp(op))
		}
		keySet = ks
	}

	var err error
	if c.validator, err = NewTokenValidator(cfg, keySet, WithNow(opts.withNowFunc), WithClockSkew(opts.withClockSkew)); err != nil {
		c.Done()
		return nil, WrapError(err, WithOp(op))
	}
	if c.matcher, err = NewMatchingValidator(c.transport, cfg.SigningKey.KeySet()); err != nil {
		c.Done()
		return nil, WrapError(err, WithOp(op))
	}
	return c, nil
}

// Done with the collector's background resources and must be called for
// every Collector created
func (c *Collector) Done() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backgroundCtxCancel != nil {
		c.backgroundCtxCancel()
		c.backgroundCtxCancel = nil
	}
}

// Collect handles the callback req of the flow held in store. An error
// response of the provider is not an error: it is returned as a Result whose
// HasError is true.
//
// The session is cleared on every return, also when ctx is cancelled; a
// failure to clear it is returned along with any other error.
func (c *Collector) Collect(ctx context.Context, store Store, req *http.Request) (result *Result, e error) {
	const op = "Collector.Collect"
	if store == nil {
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg("store is nil"), WithWrap(ErrNilParameter))
	}
	defer func() {
		if err := storeRemoveAll(context.WithoutCancel(ctx), store, op); err != nil {
			c.logger.Warn("unable to clear session", "error", err)
			result = nil
			if e == nil {
				e = err
				return
			}
			e = multierror.Append(e, err)
		}
	}()
	result, e = c.collect(ctx, store, req)
	if e != nil {
		c.logger.Warn("callback rejected", "kind", KindOf(e).String(), "error", e)
	}
	return result, e
}

func (c *Collector) collect(ctx context.Context, store Store, req *http.Request) (*Result, error) {
	const op = "Collector.collect"
	if req == nil {
		return nil, NewError(KindValidation, WithOp(op), WithMsg("request is nil"), WithWrap(ErrNilParameter))
	}
	if req.Method != http.MethodGet {
		return nil, NewError(KindProtocol, WithOp(op), WithMsg(req.Method), WithWrap(ErrUnexpectedMethod))
	}
	q := req.URL.Query()
	if err := c.nonces.ValidateState(ctx, store, q.Get("state")); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	c.logger.Debug("state validated")

	code := q.Get("code")
	if code == "" {
		errCode := q.Get("error")
		if errCode == "" {
			return nil, NewError(KindProtocol, WithOp(op), WithWrap(ErrMissingCodeAndError))
		}
		c.logger.Debug("provider returned an error response", "error", errCode)
		return newErrorResult(errCode, q.Get("error_description")), nil
	}

	fs, err := loadFlowState(ctx, store)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	if fs.UsedRedirectURI == "" {
		return nil, NewError(KindConsistency, WithOp(op), WithMsg("session expired or tampered"), WithWrap(ErrMissingRedirectURI))
	}

	tokenReq := TokenRequest{Code: code, RedirectURI: fs.UsedRedirectURI}
	if fs.ExternallyInitiated {
		tokenReq.RequestURI = fs.UsedRequestURI
	}
	tokens, err := c.transport.Exchange(ctx, tokenReq)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	c.logger.Debug("token exchanged", "externally_initiated", fs.ExternallyInitiated)

	idJWS, err := c.decrypt(string(tokens.IDToken), "id_token")
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	c.logger.Debug("id_token decrypted")

	idClaims, err := c.validator.ValidateIDToken(ctx, store, idJWS, tokens.ServerTime, fs.ExternallyInitiated)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	c.logger.Debug("id_token validated")

	var userInfo map[string]interface{}
	if tokens.HasAccessToken() {
		if userInfo, err = c.userInfo(ctx, tokens.AccessToken, tokens.ServerTime); err != nil {
			return nil, WrapError(err, WithOp(op))
		}
		if err := c.validator.ValidateTokensBelongTogether(idClaims, userInfo); err != nil {
			return nil, WrapError(err, WithOp(op))
		}
		c.logger.Debug("userinfo fetched")
		if c.matching {
			if err := c.matcher.Validate(ctx, fs, userInfo); err != nil {
				return nil, WrapError(err, WithOp(op))
			}
			c.logger.Debug("matching response validated")
		}
	}

	r, err := assembleResult(idClaims, userInfo, tokens.AccessToken)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	c.logger.Debug("flow completed")
	return r, nil
}

func (c *Collector) userInfo(ctx context.Context, token AccessToken, serverTime time.Time) (map[string]interface{}, error) {
	const op = "Collector.userInfo"
	jwe, err := c.transport.UserInfo(ctx, token)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	jws, err := c.decrypt(jwe, "userinfo")
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	claims, err := c.validator.ValidateUserInfo(ctx, jws, serverTime)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	return claims, nil
}

// decrypt opens a compact JWE addressed to the relying party's encryption
// key and returns the signed token it carries.
func (c *Collector) decrypt(token, what string) (string, error) {
	const op = "Collector.decrypt"
	plaintext, err := c.cfg.EncryptionKey.Decrypt(token)
	if err != nil {
		return "", NewError(KindCrypto, WithOp(op), WithMsg(what+": "+err.Error()), WithWrap(ErrDecryptionFailed))
	}
	return strings.TrimSpace(string(plaintext)), nil
}

// collectorOptions is the set of available options for Collector
type collectorOptions struct {
	withMatching       bool
	withTransport      Transport
	withProviderKeySet jwt.KeySet
	withLogger         hclog.Logger
	withNowFunc        func() time.Time
	withClockSkew      time.Duration
}

// collectorDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func collectorDefaults() collectorOptions {
	return collectorOptions{
		withMatching:  true,
		withLogger:    hclog.NewNullLogger(),
		withClockSkew: josejwt.DefaultLeeway,
	}
}

// getCollectorOpts gets the defaults and applies the opt overrides passed in.
func getCollectorOpts(opt ...Option) collectorOptions {
	opts := collectorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithMatchingResponseValidation turns matching response validation on
// (default) or off. Flows whose request object is encrypted are never
// checked, whatever this option.
func WithMatchingResponseValidation(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*collectorOptions); ok {
			o.withMatching = enabled
		}
	}
}

// WithTransport provides an optional Transport, the default is an
// HTTPTransport.
func WithTransport(t Transport) Option {
	return func(o interface{}) {
		if o, ok := o.(*collectorOptions); ok && t != nil {
			o.withTransport = t
		}
	}
}

// WithProviderKeySet provides an optional key set for the provider's
// signatures, the default is built from the ProviderConfig.
func WithProviderKeySet(ks jwt.KeySet) Option {
	return func(o interface{}) {
		if o, ok := o.(*collectorOptions); ok && ks != nil {
			o.withProviderKeySet = ks
		}
	}
}
