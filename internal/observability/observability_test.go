package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/leadscore/internal/lead"
	"finitefield.org/leadscore/internal/scoring"
)

func TestFromContextDefaultsToNoop(t *testing.T) {
	t.Parallel()

	require.NotNil(t, FromContext(context.Background()))

	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))
}

func TestNewLoggerWithLevelFallsBack(t *testing.T) {
	t.Parallel()

	logger, err := NewLoggerWithLevel("verbose")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	debug, err := NewLoggerWithLevel("DEBUG")
	require.NoError(t, err)
	require.True(t, debug.Core().Enabled(zapcore.DebugLevel))
}

func TestRequestLoggerLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)

	router := chi.NewRouter()
	router.Use(InjectLogger(zap.New(core)))
	router.Use(RequestLogger())
	router.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("handler ran")
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/missing/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	for _, path := range []string{"/ok", "/missing/42", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("HX-Request", "true")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	handlerLogs := logs.FilterMessage("handler ran").All()
	require.Len(t, handlerLogs, 1)
	require.Equal(t, "/ok", handlerLogs[0].ContextMap()["path"], "handler logger must carry request fields")

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 3)
	require.Equal(t, zapcore.InfoLevel, completed[0].Level)
	require.Equal(t, zapcore.WarnLevel, completed[1].Level)
	require.Equal(t, "/missing/{id}", completed[1].ContextMap()["route"])
	require.Equal(t, zapcore.ErrorLevel, completed[2].Level)
	require.Equal(t, true, completed[2].ContextMap()["htmx"])
}

type analyzerFunc func(ctx context.Context, in lead.Input) (scoring.Response, error)

func (f analyzerFunc) Analyze(ctx context.Context, in lead.Input) (scoring.Response, error) {
	return f(ctx, in)
}

func TestInstrumentedAnalyzerCountsOutcomes(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	ok := m.Instrument(analyzerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		return scoring.Response{}, nil
	}))
	failing := m.Instrument(analyzerFunc(func(context.Context, lead.Input) (scoring.Response, error) {
		return scoring.Response{}, errors.New("refused")
	}))

	_, err := ok.Analyze(context.Background(), lead.Input{})
	require.NoError(t, err)
	_, err = ok.Analyze(context.Background(), lead.Input{})
	require.NoError(t, err)
	_, err = failing.Analyze(context.Background(), lead.Input{})
	require.Error(t, err)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues(OutcomeScored)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues(OutcomeFailed)))
	require.Equal(t, 1, testutil.CollectAndCount(m.ScoringDuration))
}

func TestMetricsHandlerExposesLifecycleGauges(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.FormMounted()
	m.FormMounted()
	m.FormUnmounted()
	m.FieldUpdated()

	require.Equal(t, 1.0, testutil.ToFloat64(m.FormsMounted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FieldsUpdated))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "leadscore_forms_mounted 1"))
}
