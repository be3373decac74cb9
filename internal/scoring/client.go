package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"finitefield.org/leadscore/internal/lead"
)

const (
	// AnalyzePath is the scoring endpoint path relative to the base URL.
	AnalyzePath = "/analyze-lead/"
	// PlaceholderTitle is sent as the job title; the form does not collect one.
	PlaceholderTitle = "Unknown"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
	tracerName     = "finitefield.org/leadscore/internal/scoring"
)

// ErrMalformedResponse wraps failures to decode the scoring service payload.
var ErrMalformedResponse = errors.New("scoring: malformed response")

// Request is the outbound payload accepted by the scoring service.
type Request struct {
	Title      string `json:"title"`
	Company    string `json:"company"`
	Industry   string `json:"industry"`
	Goals      string `json:"goals"`
	Challenges string `json:"challenges"`
	Tools      string `json:"tools"`
	Website    string `json:"website"`
}

// RequestFromInput maps the lead record onto the wire field names.
func RequestFromInput(in lead.Input) Request {
	return Request{
		Title:      PlaceholderTitle,
		Company:    in.CompanyName,
		Industry:   in.Industry,
		Goals:      in.Goals,
		Challenges: in.Challenges,
		Tools:      in.ToolsUsed,
		Website:    in.Website,
	}
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTracerProvider sets the provider used for client spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// Client calls the remote lead scoring endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	tracer   trace.Tracer
}

// NewClient constructs a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("scoring: base url is required")
	}
	endpoint, err := url.JoinPath(base, AnalyzePath)
	if err != nil {
		return nil, fmt.Errorf("scoring: build endpoint: %w", err)
	}
	// JoinPath drops the trailing slash the service routes on.
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the absolute URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Analyze submits the lead and decodes the scoring response. The HTTP status
// alone is not treated as a failure; any JSON body other than null is a response.
func (c *Client) Analyze(ctx context.Context, in lead.Input) (resp Response, err error) {
	ctx, span := c.tracer.Start(ctx, "scoring.analyze",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("url.full", c.endpoint),
			attribute.Int("lead.filled_fields", in.Filled()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := json.Marshal(RequestFromInput(in))
	if err != nil {
		return Response{}, fmt.Errorf("scoring: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("scoring: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("scoring: post %s: %w", c.endpoint, err)
	}
	defer res.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("scoring: read response: %w", err)
	}

	resp, err = decodeResponse(body)
	if err != nil {
		return Response{}, fmt.Errorf("%w (status %d): %v", ErrMalformedResponse, res.StatusCode, err)
	}
	resp.StatusCode = res.StatusCode
	return resp, nil
}
