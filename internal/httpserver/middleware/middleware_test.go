package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/leadscore/internal/form"
	"finitefield.org/leadscore/internal/i18n"
	"finitefield.org/leadscore/internal/session"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFMiddleware(t *testing.T) {
	t.Parallel()

	mw := CSRF(CSRFConfig{CookieName: "csrf"})

	t.Run("issues cookie on GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		var token string
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token = CSRFTokenFromContext(r.Context())
		})).ServeHTTP(rr, req)

		require.NotEmpty(t, token)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "csrf", cookies[0].Name)
		require.Equal(t, token, cookies[0].Value)
		require.True(t, cookies[0].HttpOnly)
	})

	t.Run("rejects unsafe request without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "token"})
		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("rejects mismatched header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "token"})
		req.Header.Set(DefaultCSRFHeader, "other")
		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("allows matching header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "token"})
		req.Header.Set(DefaultCSRFHeader, "token")
		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("allows matching form field", func(t *testing.T) {
		body := url.Values{DefaultCSRFField: {"token"}, "goals": {"grow"}}.Encode()
		req := httptest.NewRequest(http.MethodPost, "/lead/fields", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "token"})
		rr := httptest.NewRecorder()
		var goals string
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			goals = r.PostFormValue("goals")
		})).ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "grow", goals, "handlers still see the parsed form")
	})
}

func TestHTMXMiddleware(t *testing.T) {
	t.Parallel()

	var info HTMXInfo
	handler := HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info = HTMXInfoFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Trigger-Name", "goals")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.True(t, info.IsHTMX)
	require.Equal(t, "goals", info.TriggerName)
	require.Contains(t, rr.Header().Values("Vary"), "HX-Request")
	require.False(t, IsHTMXRequest(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestNoStoreMiddleware(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	NoStore()(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, "no-store, max-age=0", rr.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestLocaleMiddleware(t *testing.T) {
	t.Parallel()

	bundle, err := i18n.Load("en")
	require.NoError(t, err)

	cases := []struct {
		name       string
		target     string
		accept     string
		cookie     string
		want       string
		wantCookie string
	}{
		{name: "default", target: "/", want: "en"},
		{name: "accept language", target: "/", accept: "ja-JP,ja;q=0.9,en;q=0.5", want: "ja"},
		{name: "query wins", target: "/?lang=en", accept: "ja", want: "en", wantCookie: "en"},
		{name: "unsupported query falls through", target: "/?lang=zz", accept: "ja", want: "ja"},
		{name: "cookie beats accept language", target: "/lead/fields", accept: "en", cookie: "ja", want: "ja"},
		{name: "query beats cookie", target: "/?lang=en", cookie: "ja", want: "en", wantCookie: "en"},
		{name: "unsupported cookie ignored", target: "/", accept: "ja", cookie: "zz", want: "ja"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got string
			handler := Locale(bundle)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = LocaleFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LocaleCookieName, Value: tc.cookie})
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.want, got)
			require.Equal(t, tc.want, rr.Header().Get("Content-Language"))

			var stored string
			for _, c := range rr.Result().Cookies() {
				if c.Name == LocaleCookieName {
					stored = c.Value
				}
			}
			require.Equal(t, tc.wantCookie, stored)
		})
	}
}

func newTokenManager(t *testing.T) *session.Manager {
	t.Helper()

	mgr, err := session.NewManager(session.Config{HashKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	return mgr
}

func TestFormSessionBindsMountedForm(t *testing.T) {
	t.Parallel()

	reg := form.NewRegistry()
	tokens := newTokenManager(t)
	mounted := reg.Mount()
	token, err := tokens.Issue(mounted.ID())
	require.NoError(t, err)

	var bound *form.Form
	handler := HTMX()(FormSession(reg, tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := FormFromContext(r.Context())
		require.True(t, ok)
		bound = f
	})))

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
		req.Header.Set(FormTokenHeader, token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Same(t, mounted, bound)
	})

	t.Run("form field", func(t *testing.T) {
		bound = nil
		body := url.Values{FormTokenField: {token}}.Encode()
		req := httptest.NewRequest(http.MethodPost, "/lead/score", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Same(t, mounted, bound)
	})
}

func TestFormSessionRejectsUnknownForms(t *testing.T) {
	t.Parallel()

	reg := form.NewRegistry()
	tokens := newTokenManager(t)
	unmounted := reg.Mount()
	staleToken, err := tokens.Issue(unmounted.ID())
	require.NoError(t, err)
	reg.Unmount(unmounted.ID())

	// Issued a day ago, past the default lifetime of the resolving manager.
	expiredMgr, err := session.NewManager(session.Config{
		HashKey: []byte("0123456789abcdef0123456789abcdef"),
		Now:     func() time.Time { return time.Now().Add(-24 * time.Hour) },
	})
	require.NoError(t, err)
	live := reg.Mount()
	expiredToken, err := expiredMgr.Issue(live.ID())
	require.NoError(t, err)

	handler := HTMX()(FormSession(reg, tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for rejected forms")
	})))

	cases := map[string]string{
		"missing":   "",
		"garbage":   "not-a-token",
		"unmounted": staleToken,
		"expired":   expiredToken,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
			req.Header.Set("HX-Request", "true")
			if token != "" {
				req.Header.Set(FormTokenHeader, token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, http.StatusConflict, rr.Code)
			require.Equal(t, "true", rr.Header().Get("HX-Refresh"))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/lead/fields", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Empty(t, rr.Header().Get("HX-Refresh"), "full-page requests get no htmx refresh")
}
