package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/language"
)

const (
	// SDKVersion is sent to the provider in the "ext" parameter.
	SDKVersion = "1.0.0"

	// ProfileVersion is the version of the provider profile implemented,
	// sent to the provider in the "ext" parameter.
	ProfileVersion = "2"

	// MinMaxAge and MaxMaxAge bound the max_age of a request object, in
	// seconds.
	MinMaxAge = 3600
	MaxMaxAge = 5184000

	// DefaultACR is the acr_values of a request object when none is
	// configured.
	DefaultACR = "1"

	responseTypeCode = "code"
	scopeOpenID      = "openid"
)

// AuthParams are the per-request parameters of an authentication request.
type AuthParams struct {
	// Display is required, it tells the provider how to render its UI.
	Display string

	// UILocales is an optional space separated list of BCP 47 language tags.
	UILocales string

	// Ext is optional extension data for the provider. The engine adds
	// sdk_version and profile_version to it.
	Ext map[string]interface{}
}

// PairingParams are the correlation parameters of an app initiated flow. All
// are required.
type PairingParams struct {
	PairingNonce string
	RequestURI   string
	RedirectURI  string
}

// Initiator builds the URLs which send a user agent to the provider to start
// a flow. Before building a URL it clears the session and afterwards the
// session holds the FlowState of the new flow.
type Initiator struct {
	cfg     *Config
	source  RequestSource
	acr     string
	maxAge  int
	nonces  StateNonceHandler
	logger  hclog.Logger
	nowFunc func() time.Time
}

// NewInitiator creates an Initiator sending requests through source.
//
// Supported options: WithMaxAge, WithACR, WithLogger, WithNow
func NewInitiator(cfg *Config, source RequestSource, opt ...Option) (*Initiator, error) {
	const op = "oidc.NewInitiator"
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	switch s := source.(type) {
	case RequestURI, RequestObjectJWT:
	case *RequestObject:
		if s == nil {
			return nil, NewError(KindConfiguration, WithOp(op), WithMsg("request object is nil"), WithWrap(ErrUnsupportedRequestSource))
		}
	default:
		return nil, NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("%T", source)), WithWrap(ErrUnsupportedRequestSource))
	}
	opts := getInitiatorOpts(opt...)
	maxAge := 0
	if opts.withMaxAge != nil {
		maxAge = *opts.withMaxAge
		if maxAge < MinMaxAge || maxAge > MaxMaxAge {
			return nil, NewError(KindConfiguration, WithOp(op), WithMsg(fmt.Sprintf("max age %d is not within [%d, %d]", maxAge, MinMaxAge, MaxMaxAge)), WithWrap(ErrInvalidMaxAge))
		}
	}
	return &Initiator{
		cfg:     cfg,
		source:  source,
		acr:     opts.withACR,
		maxAge:  maxAge,
		logger:  opts.withLogger,
		nowFunc: opts.withNowFunc,
	}, nil
}

func (i *Initiator) now() time.Time {
	if i.nowFunc != nil {
		return i.nowFunc()
	}
	return time.Now()
}

// AuthURL starts a flow with an authentication request and returns the URL
// of the request at the provider's authorization endpoint.
func (i *Initiator) AuthURL(ctx context.Context, store Store, p AuthParams) (authURL string, e error) {
	const op = "Initiator.AuthURL"
	if store == nil {
		return "", NewError(KindConfiguration, WithOp(op), WithMsg("store is nil"), WithWrap(ErrNilParameter))
	}
	if err := storeRemoveAll(ctx, store, op); err != nil {
		return "", err
	}
	defer func() {
		if e != nil {
			i.discard(ctx, store, op)
		}
	}()

	if p.Display == "" {
		return "", NewError(KindValidation, WithOp(op), WithMsg("display is empty"), WithWrap(ErrInvalidParameter))
	}
	if err := validateUILocales(p.UILocales); err != nil {
		return "", NewError(KindValidation, WithOp(op), WithMsg(err.Error()), WithWrap(ErrInvalidParameter))
	}
	ext, err := encodeExt(p.Ext)
	if err != nil {
		return "", NewError(KindValidation, WithOp(op), WithMsg(fmt.Sprintf("unable to encode ext: %s", err)), WithWrap(ErrInvalidParameter))
	}

	state, err := i.nonces.GenerateState(ctx, store)
	if err != nil {
		return "", WrapError(err, WithOp(op))
	}
	nonce, err := i.nonces.GenerateNonce(ctx, store)
	if err != nil {
		return "", WrapError(err, WithOp(op))
	}

	enc, err := i.source.encode(ctx, &requestEnv{cfg: i.cfg, acr: i.acr, maxAge: i.maxAge, now: i.now()})
	if err != nil {
		return "", WrapError(err, WithOp(op))
	}
	fs := &FlowState{
		UsedRedirectURI: i.cfg.RedirectURL,
		UsedRequestURI:  enc.requestURI,
		RequestedClaims: enc.requested,
	}
	if err := saveFlowState(ctx, store, fs); err != nil {
		return "", WrapError(err, WithOp(op))
	}

	ar := &AuthRequest{
		clientID:     i.cfg.ClientID,
		state:        state,
		nonce:        nonce,
		display:      p.Display,
		uiLocales:    p.UILocales,
		ext:          ext,
		requestParam: enc.param,
		requestValue: enc.value,
	}
	authURL, err = ar.URL(i.cfg.Provider.AuthorizationEndpoint)
	if err != nil {
		return "", NewError(KindConfiguration, WithOp(op), WithMsg(err.Error()), WithWrap(ErrInvalidParameter))
	}
	i.logger.Debug("authentication request built", "request_param", enc.param, "display", p.Display)
	return authURL, nil
}

// PairingURL starts an app initiated flow and returns the URL carrying the
// pairing nonce to the provider's authorization endpoint.
func (i *Initiator) PairingURL(ctx context.Context, store Store, p PairingParams) (pairingURL string, e error) {
	const op = "Initiator.PairingURL"
	if store == nil {
		return "", NewError(KindConfiguration, WithOp(op), WithMsg("store is nil"), WithWrap(ErrNilParameter))
	}
	if err := storeRemoveAll(ctx, store, op); err != nil {
		return "", err
	}
	defer func() {
		if e != nil {
			i.discard(ctx, store, op)
		}
	}()

	switch {
	case p.PairingNonce == "":
		return "", NewError(KindValidation, WithOp(op), WithMsg("pairing_nonce is missing or empty"), WithWrap(ErrInvalidParameter))
	case p.RequestURI == "":
		return "", NewError(KindValidation, WithOp(op), WithMsg("request_uri is missing or empty"), WithWrap(ErrInvalidParameter))
	case p.RedirectURI == "":
		return "", NewError(KindValidation, WithOp(op), WithMsg("redirect_uri is missing or empty"), WithWrap(ErrInvalidParameter))
	}

	fs := &FlowState{
		ExternallyInitiated: true,
		AppInitiated:        true,
		UsedRequestURI:      p.RequestURI,
		UsedRedirectURI:     p.RedirectURI,
	}
	if err := saveFlowState(ctx, store, fs); err != nil {
		return "", WrapError(err, WithOp(op))
	}
	state, err := i.nonces.GenerateState(ctx, store)
	if err != nil {
		return "", WrapError(err, WithOp(op))
	}
	pairingURL, err = endpointURL(i.cfg.Provider.AuthorizationEndpoint, url.Values{
		"client_id":     {i.cfg.ClientID},
		"pairing_nonce": {p.PairingNonce},
		"state":         {state},
	})
	if err != nil {
		return "", NewError(KindConfiguration, WithOp(op), WithMsg(err.Error()), WithWrap(ErrInvalidParameter))
	}
	i.logger.Debug("pairing request built")
	return pairingURL, nil
}

// discard clears what a failed initiation left in the session.
func (i *Initiator) discard(ctx context.Context, store Store, op string) {
	if err := storeRemoveAll(context.WithoutCancel(ctx), store, op); err != nil {
		i.logger.Warn("unable to clear session after failed initiation", "error", err)
	}
}

// ParseAuthParams reads the display, ui_locales and ext query parameters of
// req. ext is url safe base64 encoded JSON, padded or not.
func ParseAuthParams(req *http.Request) (AuthParams, error) {
	const op = "oidc.ParseAuthParams"
	if req == nil {
		return AuthParams{}, NewError(KindValidation, WithOp(op), WithMsg("request is nil"), WithWrap(ErrNilParameter))
	}
	q := req.URL.Query()
	p := AuthParams{
		Display:   q.Get("display"),
		UILocales: q.Get("ui_locales"),
	}
	if raw := q.Get("ext"); raw != "" {
		ext, err := decodeExt(raw)
		if err != nil {
			return AuthParams{}, NewError(KindValidation, WithOp(op), WithMsg(fmt.Sprintf("ext is invalid: %s", err)), WithWrap(ErrInvalidParameter))
		}
		p.Ext = ext
	}
	return p, nil
}

// ParsePairingParams reads the pairing_nonce, request_uri and redirect_uri
// query parameters of req.
func ParsePairingParams(req *http.Request) PairingParams {
	q := req.URL.Query()
	return PairingParams{
		PairingNonce: q.Get("pairing_nonce"),
		RequestURI:   q.Get("request_uri"),
		RedirectURI:  q.Get("redirect_uri"),
	}
}

func validateUILocales(v string) error {
	for _, tag := range strings.Fields(v) {
		if _, err := language.Parse(tag); err != nil {
			return fmt.Errorf("ui_locales tag %q is invalid: %w", tag, err)
		}
	}
	return nil
}

func encodeExt(ext map[string]interface{}) (string, error) {
	m := deepCopyMap(ext)
	if m == nil {
		m = map[string]interface{}{}
	}
	m["sdk_version"] = SDKVersion
	m["profile_version"] = ProfileVersion
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeExt(v string) (map[string]interface{}, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(v, "="))
	if err != nil {
		return nil, err
	}
	var ext map[string]interface{}
	if err := json.Unmarshal(b, &ext); err != nil {
		return nil, fmt.Errorf("not a json object: %w", err)
	}
	return ext, nil
}

// endpointURL adds q to the query of endpoint.
func endpointURL(endpoint string, q url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("endpoint %q is invalid: %w", endpoint, err)
	}
	existing := u.Query()
	for k, vs := range q {
		existing[k] = vs
	}
	u.RawQuery = existing.Encode()
	return u.String(), nil
}

// initiatorOptions is the set of available options for Initiator
type initiatorOptions struct {
	withMaxAge  *int
	withACR     string
	withLogger  hclog.Logger
	withNowFunc func() time.Time
}

// initiatorDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func initiatorDefaults() initiatorOptions {
	return initiatorOptions{
		withACR:    DefaultACR,
		withLogger: hclog.NewNullLogger(),
	}
}

// getInitiatorOpts gets the defaults and applies the opt overrides passed in.
func getInitiatorOpts(opt ...Option) initiatorOptions {
	opts := initiatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithMaxAge provides the max_age (seconds) of request objects. It must be
// within [MinMaxAge, MaxMaxAge].
func WithMaxAge(seconds int) Option {
	return func(o interface{}) {
		if o, ok := o.(*initiatorOptions); ok {
			o.withMaxAge = &seconds
		}
	}
}

// WithACR provides the acr_values of request objects.
func WithACR(acr string) Option {
	return func(o interface{}) {
		if o, ok := o.(*initiatorOptions); ok && acr != "" {
			o.withACR = acr
		}
	}
}
