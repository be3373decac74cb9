package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/leadscore/internal/form"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/session"
)

// Form token transport.
const (
	FormTokenHeader = "X-Lead-Form"
	FormTokenField  = "form_token"
)

type formContextKey struct{}

// FormLookup finds mounted forms.
type FormLookup interface {
	Lookup(id string) (*form.Form, bool)
}

// TokenResolver maps a signed form token to a form ID.
type TokenResolver interface {
	Resolve(token string) (string, error)
}

// FormSession binds the request to its mounted form. Unknown or expired forms
// answer 409; htmx requests also get HX-Refresh so the page remounts.
func FormSession(forms FormLookup, tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			raw := FormTokenFromRequest(r)
			id, err := tokens.Resolve(raw)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, session.ErrExpired) {
					reason = "expired"
				}
				logger.Info("form token rejected", zap.String("reason", reason), zap.Error(err))
				formGone(w, r)
				return
			}

			f, ok := forms.Lookup(id)
			if !ok {
				logger.Info("form not mounted", zap.String("form_id", id))
				formGone(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), formContextKey{}, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FormTokenFromRequest reads the form token from the header or the form field.
func FormTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(FormTokenHeader)); token != "" {
		return token
	}
	if r.Method == http.MethodGet {
		return ""
	}
	return strings.TrimSpace(r.PostFormValue(FormTokenField))
}

// FormFromContext returns the form bound by FormSession.
func FormFromContext(ctx context.Context) (*form.Form, bool) {
	f, ok := ctx.Value(formContextKey{}).(*form.Form)
	return f, ok && f != nil
}

// ContextWithForm binds f to ctx. Intended for tests and handlers mounting a
// form outside FormSession.
func ContextWithForm(ctx context.Context, f *form.Form) context.Context {
	return context.WithValue(ctx, formContextKey{}, f)
}

func formGone(w http.ResponseWriter, r *http.Request) {
	if IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Refresh", "true")
	}
	http.Error(w, "form expired; reload the page", http.StatusConflict)
}
