package form

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/leadscore/internal/lead"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/scoring"
)

type scorerFunc func(ctx context.Context, in lead.Input) (scoring.Response, error)

func (f scorerFunc) Analyze(ctx context.Context, in lead.Input) (scoring.Response, error) {
	return f(ctx, in)
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func filledForm(t *testing.T) *Form {
	t.Helper()

	f := New("form-1", epoch)
	_, err := f.SetField(lead.FieldCompanyName, "Acme", epoch)
	require.NoError(t, err)
	return f
}

func TestNewFormStartsEmpty(t *testing.T) {
	t.Parallel()

	state := New("form-1", epoch).Snapshot()
	require.Equal(t, lead.Input{}, state.Input)
	require.Nil(t, state.Result)
	require.False(t, state.Loading)
	require.Equal(t, 0, state.CompletionPercent)
	require.False(t, state.CanSubmit(), "submit must be disabled with no fields filled")
	require.Equal(t, LabelScore, state.SubmitLabel())
}

func TestSetFieldRecomputesCompletion(t *testing.T) {
	t.Parallel()

	f := New("form-1", epoch)
	for i, field := range []lead.Field{lead.FieldCompanyName, lead.FieldIndustry, lead.FieldWebsite} {
		state, err := f.SetField(field, "value", epoch.Add(time.Duration(i+1)*time.Second))
		require.NoError(t, err)
		require.Equal(t, lead.CompletionPercent(state.Input), state.CompletionPercent)
	}

	state := f.Snapshot()
	require.Equal(t, 50, state.CompletionPercent)
	require.True(t, state.CanSubmit())
	require.Equal(t, epoch.Add(3*time.Second), f.Touched())

	state, err := f.SetField(lead.FieldWebsite, "   ", epoch.Add(4*time.Second))
	require.NoError(t, err)
	require.Equal(t, 33, state.CompletionPercent)

	_, err = f.SetField(lead.Field("title"), "CTO", epoch)
	require.ErrorIs(t, err, lead.ErrUnknownField)
}

func TestSubmitSuccess(t *testing.T) {
	t.Parallel()

	f := filledForm(t)
	var seen lead.Input
	state, err := f.Submit(context.Background(), scorerFunc(func(_ context.Context, in lead.Input) (scoring.Response, error) {
		seen = in
		score := scoring.NumberScore("82")
		reason := "Strong ICP fit"
		return scoring.Response{Score: &score, Reason: &reason}, nil
	}))
	require.NoError(t, err)

	require.Equal(t, "Acme", seen.CompanyName)
	require.False(t, state.Loading)
	require.NotNil(t, state.Result)
	require.Equal(t, "82", state.Result.Score)
	require.True(t, state.Result.Numeric)
	require.Equal(t, "Strong ICP fit", state.Result.Reason)
	require.False(t, state.Result.Failed)
	require.Equal(t, LabelUpdate, state.SubmitLabel())
}

func TestSubmitDefaultsMissingFields(t *testing.T) {
	t.Parallel()

	f := filledForm(t)
	state, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		return scoring.Response{}, nil
	}))
	require.NoError(t, err)
	require.Equal(t, ScoreUnavailable, state.Result.Score)
	require.Equal(t, ReasonUnavailable, state.Result.Reason)
	require.False(t, state.Result.Numeric)
}

func TestSubmitKeepsZeroScore(t *testing.T) {
	t.Parallel()

	f := filledForm(t)
	state, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		score := scoring.NumberScore("0")
		return scoring.Response{Score: &score}, nil
	}))
	require.NoError(t, err)
	require.Equal(t, "0", state.Result.Score)
	require.Equal(t, ReasonUnavailable, state.Result.Reason)
}

func TestSubmitUnexpectedJSONUsesDefaults(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"array":          `[]`,
		"string":         `"hi"`,
		"boolean score":  `{"score": true}`,
		"numeric reason": `{"score": 82, "reason": 5}`,
	}
	want := map[string]string{
		"numeric reason": "82",
	}

	for name, body := range bodies {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			t.Cleanup(srv.Close)
			client, err := scoring.NewClient(srv.URL)
			require.NoError(t, err)

			state, err := filledForm(t).Submit(context.Background(), client)
			require.NoError(t, err)
			require.False(t, state.Result.Failed)
			wantScore := ScoreUnavailable
			if score, ok := want[name]; ok {
				wantScore = score
			}
			require.Equal(t, wantScore, state.Result.Score)
			require.Equal(t, ReasonUnavailable, state.Result.Reason)
		})
	}
}

func TestSubmitFailureShowsSentinelAndLogs(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	f := filledForm(t)
	state, err := f.Submit(ctx, scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		return scoring.Response{}, errors.New("dial tcp: connection refused")
	}))
	require.NoError(t, err, "scoring failures must not propagate")
	require.False(t, state.Loading)
	require.Equal(t, ScoreError, state.Result.Score)
	require.Equal(t, ReasonUnreachable, state.Result.Reason)
	require.True(t, state.Result.Failed)

	entries := logs.FilterMessage("scoring request failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "form-1", entries[0].ContextMap()["form_id"])
}

func TestSubmitRecoversFromPanickingScorer(t *testing.T) {
	t.Parallel()

	f := filledForm(t)
	state, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		panic("boom")
	}))
	require.NoError(t, err)
	require.False(t, state.Loading)
	require.False(t, f.Loading())
	require.Equal(t, ScoreError, state.Result.Score)
}

func TestSubmitDisabledWhenEmpty(t *testing.T) {
	t.Parallel()

	f := New("form-1", epoch)
	called := false
	_, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		called = true
		return scoring.Response{}, nil
	}))
	require.ErrorIs(t, err, ErrSubmitDisabled)
	require.False(t, called)
	require.Nil(t, f.Snapshot().Result)
}

func TestLoadingIsTrueOnlyWhileInFlight(t *testing.T) {
	t.Parallel()

	f := filledForm(t)

	// Seed a prior result so we can observe it being cleared on submission start.
	_, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		return scoring.Response{}, nil
	}))
	require.NoError(t, err)
	require.NotNil(t, f.Snapshot().Result)

	started := make(chan struct{})
	release := make(chan struct{})
	type outcome struct {
		state State
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		state, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
			close(started)
			<-release
			return scoring.Response{}, errors.New("timeout")
		}))
		done <- outcome{state: state, err: err}
	}()

	<-started
	inFlight := f.Snapshot()
	require.True(t, inFlight.Loading)
	require.Nil(t, inFlight.Result, "result must be cleared when a submission starts")
	require.False(t, inFlight.CanSubmit())
	require.Equal(t, LabelAnalyzing, inFlight.SubmitLabel())

	_, err = f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		t.Fatal("second submission must not reach the scorer")
		return scoring.Response{}, nil
	}))
	require.ErrorIs(t, err, ErrSubmitDisabled)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	settled := res.state
	require.False(t, settled.Loading)
	require.False(t, f.Loading())
	require.Equal(t, ScoreError, settled.Result.Score)
}

func TestConcurrentFieldUpdatesKeepOtherFields(t *testing.T) {
	t.Parallel()

	f := New("form-1", epoch)
	var wg sync.WaitGroup
	for _, field := range lead.Fields() {
		field := field
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.SetField(field, string(field)+"-value", epoch)
		}()
	}
	wg.Wait()

	state := f.Snapshot()
	for _, field := range lead.Fields() {
		require.Equal(t, string(field)+"-value", state.Input.Value(field))
	}
	require.Equal(t, 100, state.CompletionPercent)
}

func TestSnapshotResultIsCopy(t *testing.T) {
	t.Parallel()

	f := filledForm(t)
	_, err := f.Submit(context.Background(), scorerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		return scoring.Response{}, nil
	}))
	require.NoError(t, err)

	state := f.Snapshot()
	state.Result.Score = "tampered"
	require.Equal(t, ScoreUnavailable, f.Snapshot().Result.Score)
}
