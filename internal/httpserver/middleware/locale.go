package middleware

import (
	"context"
	"net/http"
)

// LocaleCookieName stores the language picked with ?lang= so htmx requests,
// which never carry the query, keep rendering in it.
const LocaleCookieName = "leadscore_lang"

const localeCookieMaxAge = 365 * 24 * 60 * 60

type localeContextKey struct{}

// LocaleResolver negotiates the display language.
type LocaleResolver interface {
	Match(lang string) (string, bool)
	Resolve(acceptLanguage string) string
	Fallback() string
}

// Locale resolves the UI language from ?lang=, then the locale cookie, then
// Accept-Language. A supported ?lang= is remembered in the cookie.
func Locale(resolver LocaleResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := ""
			if q := r.URL.Query().Get("lang"); q != "" {
				if matched, ok := resolver.Match(q); ok {
					lang = matched
					http.SetCookie(w, &http.Cookie{
						Name:     LocaleCookieName,
						Value:    matched,
						Path:     "/",
						MaxAge:   localeCookieMaxAge,
						HttpOnly: true,
						SameSite: http.SameSiteLaxMode,
					})
				}
			}
			if lang == "" {
				if c, err := r.Cookie(LocaleCookieName); err == nil {
					if matched, ok := resolver.Match(c.Value); ok {
						lang = matched
					}
				}
			}
			if lang == "" {
				lang = resolver.Resolve(r.Header.Get("Accept-Language"))
			}

			w.Header().Set("Content-Language", lang)
			w.Header().Add("Vary", "Accept-Language")
			w.Header().Add("Vary", "Cookie")
			ctx := context.WithValue(r.Context(), localeContextKey{}, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LocaleFromContext returns the negotiated language, or "en" when unset.
func LocaleFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(localeContextKey{}).(string); ok && lang != "" {
		return lang
	}
	return "en"
}
