// Package form holds the state container behind one mounted lead form: the
// lead record, the latest scoring result and the in-flight flag.
package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/leadscore/internal/lead"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/scoring"
)

// Display values applied when a submission settles.
const (
	ScoreUnavailable  = "N/A"
	ReasonUnavailable = "No reason provided."
	ScoreError        = "❌ Error"
	ReasonUnreachable = "Could not connect to backend."
)

// Submit label keys, resolved to text by the UI catalog.
const (
	LabelAnalyzing = "submit.analyzing"
	LabelScore     = "submit.score"
	LabelUpdate    = "submit.update"
)

// ErrSubmitDisabled is returned when a submission is attempted while the
// submit control is disabled.
var ErrSubmitDisabled = errors.New("form: submit disabled")

// Scorer submits a lead to the scoring service.
type Scorer interface {
	Analyze(ctx context.Context, in lead.Input) (scoring.Response, error)
}

// Result is the score and rationale shown after a submission settles.
type Result struct {
	Score   string
	Numeric bool
	Reason  string
	Summary string
	Failed  bool
}

// ResultFromResponse applies display defaults to a decoded response. Presence
// is checked explicitly so a zero score is kept.
func ResultFromResponse(resp scoring.Response) Result {
	res := Result{
		Score:  ScoreUnavailable,
		Reason: ReasonUnavailable,
	}
	if resp.Score != nil {
		res.Score = resp.Score.String()
		res.Numeric = resp.Score.IsNumber()
	}
	if resp.Reason != nil {
		res.Reason = *resp.Reason
	}
	if resp.Summary != nil {
		res.Summary = *resp.Summary
	}
	return res
}

// FailedResult is shown when the scoring request could not complete.
func FailedResult() Result {
	return Result{
		Score:  ScoreError,
		Reason: ReasonUnreachable,
		Failed: true,
	}
}

// State is an immutable snapshot of a form.
type State struct {
	ID                string
	Input             lead.Input
	Result            *Result
	Loading           bool
	CompletionPercent int
}

// HasResult reports whether a submission has settled since the result was last cleared.
func (s State) HasResult() bool { return s.Result != nil }

// CanSubmit reports whether the submit control is enabled.
func (s State) CanSubmit() bool {
	return !s.Loading && s.CompletionPercent > 0
}

// SubmitLabel returns the catalog key for the submit control label.
func (s State) SubmitLabel() string {
	switch {
	case s.Loading:
		return LabelAnalyzing
	case s.Result == nil:
		return LabelScore
	default:
		return LabelUpdate
	}
}

// Form is the state container for one mounted lead form. It is safe for
// concurrent use; the lock is never held across the scoring call.
type Form struct {
	mu        sync.Mutex
	id        string
	input     lead.Input
	result    *Result
	loading   bool
	createdAt time.Time
	touchedAt time.Time
	clock     func() time.Time
}

// New returns a form with every field empty.
func New(id string, now time.Time) *Form {
	return &Form{
		id:        id,
		createdAt: now,
		touchedAt: now,
		clock:     time.Now,
	}
}

// ID returns the form identifier.
func (f *Form) ID() string { return f.id }

// Snapshot returns the current state.
func (f *Form) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// CanSubmit reports whether the submit control is enabled.
func (f *Form) CanSubmit() bool {
	return f.Snapshot().CanSubmit()
}

// SetField replaces a single field in the lead record.
func (f *Form) SetField(field lead.Field, value string, now time.Time) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := lead.Update(f.input, field, value)
	if err != nil {
		return f.snapshotLocked(), err
	}
	f.input = next
	f.touch(now)
	return f.snapshotLocked(), nil
}

// Submit sends the current lead to scorer and records the outcome. Failures
// are converted to display state; only ErrSubmitDisabled is returned.
func (f *Form) Submit(ctx context.Context, scorer Scorer) (State, error) {
	input, err := f.begin()
	if err != nil {
		return f.Snapshot(), err
	}
	f.settle(ctx, scorer, input)
	return f.Snapshot(), nil
}

func (f *Form) begin() (lead.Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.snapshotLocked().CanSubmit() {
		return lead.Input{}, ErrSubmitDisabled
	}
	f.loading = true
	f.result = nil
	f.touch(f.clock())
	return f.input, nil
}

func (f *Form) settle(ctx context.Context, scorer Scorer, input lead.Input) {
	defer func() {
		f.mu.Lock()
		f.loading = false
		f.touch(f.clock())
		f.mu.Unlock()
	}()

	result := f.score(ctx, scorer, input)

	f.mu.Lock()
	f.result = &result
	f.mu.Unlock()
}

func (f *Form) score(ctx context.Context, scorer Scorer, input lead.Input) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.FromContext(ctx).Error("scoring panicked",
				zap.String("form_id", f.id),
				zap.Any("panic", rec),
			)
			result = FailedResult()
		}
	}()

	if scorer == nil {
		return FailedResult()
	}
	resp, err := scorer.Analyze(ctx, input)
	if err != nil {
		observability.FromContext(ctx).Warn("scoring request failed",
			zap.String("form_id", f.id),
			zap.Error(err),
		)
		return FailedResult()
	}
	return ResultFromResponse(resp)
}

// CreatedAt returns the mount time.
func (f *Form) CreatedAt() time.Time { return f.createdAt }

// Touched returns the time of the last field update or submission.
func (f *Form) Touched() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touchedAt
}

// Loading reports whether a submission is in flight.
func (f *Form) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

func (f *Form) touch(now time.Time) {
	if now.After(f.touchedAt) {
		f.touchedAt = now
	}
}

func (f *Form) snapshotLocked() State {
	state := State{
		ID:                f.id,
		Input:             f.input,
		Loading:           f.loading,
		CompletionPercent: lead.CompletionPercent(f.input),
	}
	if f.result != nil {
		copied := *f.result
		state.Result = &copied
	}
	return state
}
