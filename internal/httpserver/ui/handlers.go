package ui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"finitefield.org/leadscore/internal/form"
	custommw "finitefield.org/leadscore/internal/httpserver/middleware"
	"finitefield.org/leadscore/internal/lead"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/templates/leadform"
)

// ScoreAction is the submit control's name/value pair. Only a request
// carrying it counts as an explicit submission.
const (
	ActionField = "action"
	ScoreAction = "score"
)

// FormRegistry mounts and tears down forms.
type FormRegistry interface {
	Mount() *form.Form
	Unmount(id string) bool
}

// Tokens issues and resolves signed form tokens.
type Tokens interface {
	Issue(formID string) (string, error)
	Resolve(token string) (string, error)
}

// Catalog translates UI labels.
type Catalog interface {
	leadform.Translator
	Supported() []string
}

// FieldObserver counts applied field edits.
type FieldObserver interface {
	FieldUpdated()
}

// Dependencies collects the services required by the UI handlers.
type Dependencies struct {
	Forms    FormRegistry
	Tokens   Tokens
	Scorer   form.Scorer
	Catalog  Catalog
	Observer FieldObserver
	Now      func() time.Time
}

// Handlers exposes the lead form page and its htmx endpoints.
type Handlers struct {
	forms    FormRegistry
	tokens   Tokens
	scorer   form.Scorer
	catalog  Catalog
	observer FieldObserver
	now      func() time.Time
}

// NewHandlers wires the UI handler set.
func NewHandlers(deps Dependencies) *Handlers {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		forms:    deps.Forms,
		tokens:   deps.Tokens,
		scorer:   deps.Scorer,
		catalog:  deps.Catalog,
		observer: deps.Observer,
		now:      now,
	}
}

// Index mounts a fresh form and renders the full page. A form named by a
// presented token is unmounted first.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	if prior := custommw.FormTokenFromRequest(r); prior != "" {
		if id, err := h.tokens.Resolve(prior); err == nil && h.forms.Unmount(id) {
			logger.Debug("unmounted prior form", zap.String("form_id", id))
		}
	}

	f := h.forms.Mount()
	token, err := h.tokens.Issue(f.ID())
	if err != nil {
		h.forms.Unmount(f.ID())
		logger.Error("issue form token failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	logger.Debug("mounted form", zap.String("form_id", f.ID()))

	h.renderPage(w, r, f.Snapshot(), token)
}

// UpdateFields applies each posted lead field. htmx requests receive the
// progress readout and submit control as out-of-band fragments.
func (h *Handlers) UpdateFields(w http.ResponseWriter, r *http.Request) {
	f, ok := custommw.FormFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	state := h.applyFields(r, f)

	if custommw.IsHTMXRequest(r.Context()) {
		lang := custommw.LocaleFromContext(r.Context())
		templ.Handler(leadform.FieldUpdate(leadform.NewFieldUpdate(state, h.catalog, lang))).ServeHTTP(w, r)
		return
	}
	h.renderPage(w, r, state, custommw.FormTokenFromRequest(r))
}

// Score submits the lead when the request carries the submit action. The
// scoring call is detached from client cancellation; only the scoring
// client's timeout ends it.
func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	f, ok := custommw.FormFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	logger := observability.FromContext(r.Context()).With(zap.String("form_id", f.ID()))
	state := h.applyFields(r, f)

	if r.PostForm.Get(ActionField) == ScoreAction {
		ctx := observability.WithLogger(context.WithoutCancel(r.Context()), logger)
		next, err := f.Submit(ctx, h.scorer)
		switch {
		case errors.Is(err, form.ErrSubmitDisabled):
			logger.Debug("submission ignored while disabled",
				zap.Bool("loading", next.Loading),
				zap.Int("completion", next.CompletionPercent),
			)
		case err != nil:
			logger.Error("submission failed", zap.Error(err))
		default:
			logger.Info("lead scored",
				zap.String("score", next.Result.Score),
				zap.Bool("failed", next.Result.Failed),
			)
		}
		state = next
	}

	if custommw.IsHTMXRequest(r.Context()) {
		lang := custommw.LocaleFromContext(r.Context())
		data := leadform.NewPanelData(state, h.catalog, lang)
		component := leadform.Panel(data, custommw.CSRFTokenFromContext(r.Context()), custommw.FormTokenFromRequest(r))
		templ.Handler(component).ServeHTTP(w, r)
		return
	}
	h.renderPage(w, r, state, custommw.FormTokenFromRequest(r))
}

// Reset unmounts the form and sends the browser back to a fresh page.
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	if f, ok := custommw.FormFromContext(r.Context()); ok {
		h.forms.Unmount(f.ID())
	}
	if custommw.IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) applyFields(r *http.Request, f *form.Form) form.State {
	state := f.Snapshot()
	for _, field := range lead.Fields() {
		values, ok := r.PostForm[string(field)]
		if !ok || len(values) == 0 {
			continue
		}
		next, err := f.SetField(field, values[len(values)-1], h.now())
		if err != nil {
			continue
		}
		state = next
		if h.observer != nil {
			h.observer.FieldUpdated()
		}
	}
	return state
}

func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, state form.State, formToken string) {
	lang := custommw.LocaleFromContext(r.Context())
	data := leadform.NewPageData(state, h.catalog, lang, custommw.CSRFTokenFromContext(r.Context()), formToken, h.catalog.Supported())
	templ.Handler(leadform.Page(data)).ServeHTTP(w, r)
}
