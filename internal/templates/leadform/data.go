// Package leadform renders the lead scoring page and its htmx fragments.
package leadform

import (
	"encoding/json"

	"finitefield.org/leadscore/internal/form"
	"finitefield.org/leadscore/internal/httpserver/middleware"
	"finitefield.org/leadscore/internal/lead"
	"finitefield.org/leadscore/internal/templates/helpers"
	"finitefield.org/leadscore/public"
)

// Element IDs shared by the full page and the out-of-band fragments.
const (
	PanelID    = "lead-panel"
	ProgressID = "lead-progress"
	SubmitID   = "lead-submit"
	ResultID   = "lead-result"
)

// Routes posted to by the rendered markup.
const (
	FieldsPath = "/lead/fields"
	ScorePath  = "/lead/score"
	ResetPath  = "/lead/reset"
)

// Translator resolves catalog keys for a language.
type Translator interface {
	T(lang, key string, args ...any) string
}

// PageData drives the full page.
type PageData struct {
	Lang       string
	Title      string
	ScriptSrc  string
	ResetLabel string
	CSRFToken  string
	FormToken  string
	Languages  []string
	Panel      PanelData
}

// PanelData drives the form panel, which is also the htmx response for a
// submission.
type PanelData struct {
	Fields   []FieldView
	Progress ProgressView
	Submit   SubmitView
	Result   *ResultView
}

// FieldView is one text input.
type FieldView struct {
	Name        string
	Type        string
	Placeholder string
	Value       string
}

// ProgressView is the completion readout.
type ProgressView struct {
	Percent int
	Label   string
	Style   string
}

// SubmitView is the submit control.
type SubmitView struct {
	Label          string
	AnalyzingLabel string
	Enabled        bool
	Class          string
}

// ResultView is the settled scoring result.
type ResultView struct {
	ScoreLabel   string
	Score        string
	ReasonLabel  string
	Reason       string
	SummaryLabel string
	Summary      string
	Failed       bool
}

// NewPageData builds the page view model.
func NewPageData(state form.State, tr Translator, lang, csrfToken, formToken string, languages []string) PageData {
	return PageData{
		Lang:       lang,
		Title:      tr.T(lang, "page.title"),
		ScriptSrc:  public.HTMXSrc(),
		ResetLabel: tr.T(lang, "page.reset"),
		CSRFToken:  csrfToken,
		FormToken:  formToken,
		Languages:  languages,
		Panel:      NewPanelData(state, tr, lang),
	}
}

// NewPanelData builds the panel view model from a form snapshot.
func NewPanelData(state form.State, tr Translator, lang string) PanelData {
	fields := make([]FieldView, 0, len(lead.Fields()))
	for _, f := range lead.Fields() {
		inputType := "text"
		if f == lead.FieldWebsite {
			inputType = "url"
		}
		fields = append(fields, FieldView{
			Name:        string(f),
			Type:        inputType,
			Placeholder: tr.T(lang, "field."+string(f)),
			Value:       state.Input.Value(f),
		})
	}

	data := PanelData{
		Fields:   fields,
		Progress: newProgressView(state, tr, lang),
		Submit:   newSubmitView(state, tr, lang),
	}
	if state.Result != nil {
		res := state.Result
		data.Result = &ResultView{
			ScoreLabel:   tr.T(lang, "result.score"),
			Score:        helpers.ScoreDisplay(res.Score, res.Numeric),
			ReasonLabel:  tr.T(lang, "result.reason"),
			Reason:       res.Reason,
			SummaryLabel: tr.T(lang, "result.summary"),
			Summary:      res.Summary,
			Failed:       res.Failed,
		}
	}
	return data
}

// NewFieldUpdate builds the fragments refreshed after a field edit.
func NewFieldUpdate(state form.State, tr Translator, lang string) FieldUpdateData {
	return FieldUpdateData{
		Progress: newProgressView(state, tr, lang),
		Submit:   newSubmitView(state, tr, lang),
	}
}

// FieldUpdateData carries the out-of-band fragments for a field edit.
type FieldUpdateData struct {
	Progress ProgressView
	Submit   SubmitView
}

func newProgressView(state form.State, tr Translator, lang string) ProgressView {
	return ProgressView{
		Percent: state.CompletionPercent,
		Label:   tr.T(lang, "progress.label", state.CompletionPercent),
		Style:   helpers.ProgressStyle(state.CompletionPercent),
	}
}

func newSubmitView(state form.State, tr Translator, lang string) SubmitView {
	enabled := state.CanSubmit()
	return SubmitView{
		Label:          tr.T(lang, state.SubmitLabel()),
		AnalyzingLabel: tr.T(lang, form.LabelAnalyzing),
		Enabled:        enabled,
		Class:          helpers.ButtonClass(enabled),
	}
}

// htmxHeaders is the hx-headers JSON that sends both tokens on every htmx
// request from the page.
func htmxHeaders(csrfToken, formToken string) string {
	raw, err := json.Marshal(map[string]string{
		middleware.DefaultCSRFHeader: csrfToken,
		middleware.FormTokenHeader:   formToken,
	})
	if err != nil {
		return "{}"
	}
	return string(raw)
}
