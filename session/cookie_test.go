package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/idtrust/rpflow/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookies_Read(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("new-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Cookies{Backend: NewMemory(), Secure: true}
		w := httptest.NewRecorder()
		st, err := c.Read(w, httptest.NewRequest(http.MethodGet, "/login", nil))
		require.NoError(err)
		require.NotNil(st)

		cookies := w.Result().Cookies()
		require.Len(cookies, 1)
		ck := cookies[0]
		assert.Equal(DefaultCookieName, ck.Name)
		assert.True(strings.HasPrefix(ck.Value, "s_"))
		assert.True(ck.HttpOnly)
		assert.True(ck.Secure)
		assert.Equal(http.SameSiteLaxMode, ck.SameSite)
		assert.Equal("/", ck.Path)
	})

	t.Run("existing-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m := NewMemory()
		known := "s_" + strings.Repeat("K", 32)
		require.NoError(m.Store(known).Set(ctx, "rpflow.state", "st_1"))
		c := &Cookies{Backend: m, Name: "rp"}

		req := httptest.NewRequest(http.MethodGet, "/callback", nil)
		req.AddCookie(&http.Cookie{Name: "rp", Value: known})
		w := httptest.NewRecorder()
		st, err := c.Read(w, req)
		require.NoError(err)
		assert.Empty(w.Result().Cookies())

		v, ok, err := st.Get(ctx, "rpflow.state")
		require.NoError(err)
		assert.True(ok)
		assert.Equal("st_1", v)
	})

	t.Run("not-a-generated-id", func(t *testing.T) {
		for _, v := range []string{
			"attacker-chosen",
			"s_short",
			"x_" + strings.Repeat("a", 32),
			"s_" + strings.Repeat("a", 31) + "!",
			"s_" + strings.Repeat("a", 33),
			strings.Repeat("a", 200),
		} {
			c := &Cookies{Backend: NewMemory()}
			req := httptest.NewRequest(http.MethodGet, "/login", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: v})
			w := httptest.NewRecorder()
			_, err := c.Read(w, req)
			require.NoError(t, err)
			cookies := w.Result().Cookies()
			require.Len(t, cookies, 1, v)
			assert.NotEqual(t, v, cookies[0].Value)
			assert.Regexp(t, `^s_[0-9A-Za-z]{32}$`, cookies[0].Value)
		}
	})

	t.Run("nil-backend", func(t *testing.T) {
		_, err := (&Cookies{}).Read(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, oidc.IsKind(err, oidc.KindConfiguration))
		assert.ErrorIs(t, err, oidc.ErrNilParameter)
	})

	t.Run("nil-request", func(t *testing.T) {
		_, err := (&Cookies{Backend: NewMemory()}).Read(httptest.NewRecorder(), nil)
		assert.True(t, oidc.IsKind(err, oidc.KindValidation))
	})
}
