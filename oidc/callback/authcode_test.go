package callback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/idtrust/rpflow/oidc"
	"github.com/idtrust/rpflow/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRP wires an Initiator and a Collector for tp behind the handlers of
// this package, sharing one memory session backend.
type testRP struct {
	tp      *oidc.TestProvider
	cfg     *oidc.Config
	backend *session.Memory
	cookies *session.Cookies
	login   http.HandlerFunc
	pairing http.HandlerFunc
	code    http.HandlerFunc
}

func testNewRP(t *testing.T, opt ...oidc.Option) *testRP {
	t.Helper()
	require := require.New(t)
	ctx := context.Background()

	tp := oidc.StartTestProvider(t)
	tp.SetExpectedAuthCode("valid-code")
	cfg := tp.TestConfig()

	ro, err := oidc.NewRequestObject(map[string]interface{}{
		"userinfo": map[string]interface{}{
			"email_verified": map[string]interface{}{"essential": true},
		},
	})
	require.NoError(err)
	i, err := oidc.NewInitiator(cfg, ro)
	require.NoError(err)
	c, err := oidc.NewCollector(cfg, opt...)
	require.NoError(err)
	t.Cleanup(c.Done)

	rp := &testRP{tp: tp, cfg: cfg, backend: session.NewMemory()}
	rp.cookies = &session.Cookies{Backend: rp.backend}
	rp.login, err = Login(ctx, i, rp.cookies, testFailFn)
	require.NoError(err)
	rp.pairing, err = Pairing(ctx, i, rp.cookies, testFailFn)
	require.NoError(err)
	rp.code, err = AuthCode(ctx, c, rp.cookies, testSuccessFn, testFailFn)
	require.NoError(err)
	return rp
}

// authorize follows a redirect to the provider's authorization endpoint and
// returns the callback URL the provider redirects back to.
func (rp *testRP) authorize(t *testing.T, authURL string) string {
	t.Helper()
	require := require.New(t)
	client, err := rp.cfg.HTTPClient()
	require.NoError(err)
	noFollow := *client
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := noFollow.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}

// startLogin runs the Login handler and returns the session cookie and the
// provider's callback URL.
func (rp *testRP) startLogin(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	require := require.New(t)
	w := httptest.NewRecorder()
	rp.login(w, httptest.NewRequest(http.MethodGet, "https://example.com/login?display=page", nil))
	resp := w.Result()
	require.Equal(http.StatusFound, resp.StatusCode)
	require.Len(resp.Cookies(), 1)
	return resp.Cookies()[0], rp.authorize(t, resp.Header.Get("Location"))
}

func (rp *testRP) callback(cookie *http.Cookie, callbackURL string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, callbackURL, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	rp.code(w, req)
	return w.Result()
}

func testErrResponse(t *testing.T, resp *http.Response) AuthenErrorResponse {
	t.Helper()
	var got AuthenErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	return got
}

func TestAuthCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := oidc.StartTestProvider(t)
	c, err := oidc.NewCollector(tp.TestConfig())
	require.NoError(t, err)
	t.Cleanup(c.Done)
	sr := &SingleSessionReader{Store: session.NewMemory().Store("s")}

	tests := []struct {
		name      string
		c         *oidc.Collector
		sr        SessionReader
		sFn       SuccessResponseFunc
		eFn       ErrorResponseFunc
		wantIsErr error
	}{
		{"valid", c, sr, testSuccessFn, testFailFn, nil},
		{"nil-collector", nil, sr, testSuccessFn, testFailFn, oidc.ErrInvalidParameter},
		{"nil-sr", c, nil, testSuccessFn, testFailFn, oidc.ErrInvalidParameter},
		{"nil-sFn", c, sr, nil, testFailFn, oidc.ErrInvalidParameter},
		{"nil-eFn", c, sr, testSuccessFn, nil, oidc.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := AuthCode(ctx, tt.c, tt.sr, tt.sFn, tt.eFn)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				assert.True(oidc.IsKind(err, oidc.KindConfiguration))
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func Test_AuthCodeResponses(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rp := testNewRP(t)
		cookie, callbackURL := rp.startLogin(t)

		resp := rp.callback(cookie, callbackURL)
		assert.Equal(http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(err)
		assert.Equal("user-42", string(body))
		assert.Equal(0, rp.backend.Len())
	})

	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rp := testNewRP(t)
		rp.tp.SetExpectedAuthCode("")
		cookie, callbackURL := rp.startLogin(t)

		resp := rp.callback(cookie, callbackURL+"&error_description=denied&error_uri=https%3A%2F%2Fidp.example.com%2Ferr")
		require.Equal(http.StatusUnauthorized, resp.StatusCode)
		got := testErrResponse(t, resp)
		assert.Equal("access_denied", got.Error)
		assert.Equal("denied", got.Description)
		assert.Equal("https://idp.example.com/err", got.Uri)
		assert.Equal(0, rp.backend.Len())
	})

	t.Run("no-session-cookie", func(t *testing.T) {
		assert := assert.New(t)
		rp := testNewRP(t)
		_, callbackURL := rp.startLogin(t)

		resp := rp.callback(nil, callbackURL)
		assert.Equal(http.StatusForbidden, resp.StatusCode)
		assert.Contains(testErrResponse(t, resp).Description, oidc.ErrInvalidState.Error())
		assert.Equal(1, rp.backend.Len(), "the pending flow is not touched")
	})

	t.Run("forged-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rp := testNewRP(t)
		cookie, callbackURL := rp.startLogin(t)
		u, err := url.Parse(callbackURL)
		require.NoError(err)
		q := u.Query()
		q.Set("state", "st_forged")
		u.RawQuery = q.Encode()

		resp := rp.callback(cookie, u.String())
		assert.Equal(http.StatusForbidden, resp.StatusCode)
		assert.Equal(0, rp.backend.Len())
	})

	t.Run("matching-failure", func(t *testing.T) {
		assert := assert.New(t)
		rp := testNewRP(t)
		rp.tp.SetUserInfoClaims(map[string]interface{}{"email_verified": false})
		cookie, callbackURL := rp.startLogin(t)

		resp := rp.callback(cookie, callbackURL)
		assert.Equal(http.StatusForbidden, resp.StatusCode)
		assert.Contains(testErrResponse(t, resp).Description, oidc.ErrMatchingResponse.Error())
	})

	t.Run("matching-disabled", func(t *testing.T) {
		rp := testNewRP(t, oidc.WithMatchingResponseValidation(false))
		rp.tp.SetUserInfoClaims(map[string]interface{}{"email_verified": false})
		cookie, callbackURL := rp.startLogin(t)

		resp := rp.callback(cookie, callbackURL)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("session-read-fails", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		c, err := oidc.NewCollector(tp.TestConfig())
		require.NoError(err)
		t.Cleanup(c.Done)
		h, err := AuthCode(context.Background(), c, &testFailingReader{}, testSuccessFn, testFailFn)
		require.NoError(err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "https://example.com/callback?state=st_1&code=c", nil))
		assert.Equal(http.StatusInternalServerError, w.Code)
	})
}

type testFailingReader struct{}

func (*testFailingReader) Read(http.ResponseWriter, *http.Request) (oidc.Store, error) {
	return nil, errors.New("session backend down")
}
