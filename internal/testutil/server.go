package testutil

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"finitefield.org/leadscore/internal/form"
	"finitefield.org/leadscore/internal/httpserver"
	"finitefield.org/leadscore/internal/httpserver/middleware"
	"finitefield.org/leadscore/internal/i18n"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/scoring"
	"finitefield.org/leadscore/internal/session"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithScorer overrides the scoring dependency.
func WithScorer(scorer form.Scorer) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Scorer = scorer
	}
}

// WithRegistry wires a caller-owned form registry.
func WithRegistry(reg *form.Registry) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Forms = reg
	}
}

// WithMetrics wires caller-owned metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Logger = logger
	}
}

// NewScoringServer starts a fake scoring endpoint answering every request
// with status and body.
func NewScoringServer(t testing.TB, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// NewScoringClient returns a scoring client for baseURL.
func NewScoringClient(t testing.TB, baseURL string) *scoring.Client {
	t.Helper()

	client, err := scoring.NewClient(baseURL)
	if err != nil {
		t.Fatalf("scoring client: %v", err)
	}
	return client
}

// NewServer constructs an httptest server running the full HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	catalog, err := i18n.Load("en", "en", "ja")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	tokens, err := session.NewManager(session.Config{HashKey: []byte("test-hash-key-test-hash-key-0123")})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	cfg := httpserver.Config{
		Address: ":0",
		Logger:  zap.NewNop(),
		Tokens:  tokens,
		Catalog: catalog,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics()
	}
	if cfg.Forms == nil {
		cfg.Forms = form.NewRegistry(form.WithObserver(cfg.Metrics))
	}
	if cfg.Scorer == nil {
		scoringSrv := NewScoringServer(t, http.StatusOK, `{"score": 50, "reason": "Default fake"}`)
		cfg.Scorer = NewScoringClient(t, scoringSrv.URL)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// Browser drives a mounted lead form the way the page's htmx attributes do.
type Browser struct {
	BaseURL   string
	IndexPath string
	Header    http.Header
	Client    *http.Client
	CSRFToken string
	FormToken string
	Page      *goquery.Document
}

// OpenPage loads the index page and captures its tokens.
func OpenPage(t testing.TB, baseURL string) *Browser {
	t.Helper()
	return OpenPageAt(t, baseURL, "/", nil)
}

// OpenPageAt loads indexPath with header sent on every request the browser
// makes afterwards.
func OpenPageAt(t testing.TB, baseURL, indexPath string, header http.Header) *Browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	b := &Browser{
		BaseURL:   baseURL,
		IndexPath: indexPath,
		Header:    header,
		Client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	b.Reload(t)
	return b
}

// Reload fetches the index page again, mounting a fresh form.
func (b *Browser) Reload(t testing.TB) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, b.BaseURL+b.IndexPath, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	b.applyHeader(req)
	if b.FormToken != "" {
		req.Header.Set(middleware.FormTokenHeader, b.FormToken)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get index: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	b.Page = ParseHTML(t, body)
	b.CSRFToken = b.Page.Find("input[name="+middleware.DefaultCSRFField+"]").First().AttrOr("value", "")
	b.FormToken = b.Page.Find("input[name="+middleware.FormTokenField+"]").First().AttrOr("value", "")
	if b.CSRFToken == "" || b.FormToken == "" {
		t.Fatalf("index page is missing tokens")
	}
}

// Post sends values to path with the page's tokens in headers. htmx marks the
// request as issued by htmx.
func (b *Browser) Post(t testing.TB, path string, values url.Values, htmx bool) (*http.Response, []byte) {
	t.Helper()

	resp, body, err := b.Do(path, values, htmx)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp, body
}

// Do is Post without a testing.TB, for use from helper goroutines.
func (b *Browser) Do(path string, values url.Values, htmx bool) (*http.Response, []byte, error) {
	req, err := http.NewRequest(http.MethodPost, b.BaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, nil, err
	}
	b.applyHeader(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.DefaultCSRFHeader, b.CSRFToken)
	req.Header.Set(middleware.FormTokenHeader, b.FormToken)
	if htmx {
		req.Header.Set("HX-Request", "true")
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (b *Browser) applyHeader(req *http.Request) {
	for k, v := range b.Header {
		req.Header[k] = append([]string(nil), v...)
	}
}
