// Package fetcher is the single path for outbound HTTP in Pinpoint. Every
// provider call goes through Fetcher.Do, which applies a per-attempt timeout,
// retries exactly once when (and only when) that timeout fires, caps the
// response size, optionally guards the URL against SSRF, and routes
// registered providers through a circuit breaker.
//
// Do never panics and never returns a nil Result: failures are reported as a
// typed Outcome so callers can degrade without inspecting error identity.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/telemetry"
)

// Outcome classifies the result of a fetch.
type Outcome int

const (
	// OutcomeSuccess means a 2xx response was received and read.
	OutcomeSuccess Outcome = iota
	// OutcomeTimeout means the attempt (and its retry) hit the per-attempt deadline.
	OutcomeTimeout
	// OutcomeFailure covers every other error: DNS, refused, non-2xx, blocked URL, open circuit.
	OutcomeFailure
)

// String returns the metrics label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxBytes = 2 << 20
	maxRedirects    = 5
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// Request describes one outbound call.
type Request struct {
	// Provider labels metrics and selects the circuit breaker (if registered).
	Provider string
	Method   string // default GET
	URL      string
	Header   http.Header

	// Timeout bounds a single attempt; zero uses the fetcher default.
	Timeout time.Duration

	// MaxBytes caps the body read; zero uses the fetcher default. Bodies
	// longer than the cap are cut and Result.Truncated is set.
	MaxBytes int64

	// Guarded applies the URL validator to the URL and every redirect hop.
	// Set it for any URL that did not come from configuration.
	Guarded bool
}

// Result is the typed outcome of Do.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
	Truncated  bool
	Attempts   int
	Err        error
}

// OK reports whether the call succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// Options configures a Fetcher.
type Options struct {
	UserAgent       string
	DefaultTimeout  time.Duration
	DefaultMaxBytes int64
	RetryDelay      time.Duration // fixed delay before the timeout retry (default 250ms)

	// Transport overrides the HTTP transport (tests use httptest servers).
	Transport http.RoundTripper

	// URLValidator checks guarded URLs. Default: ValidateURL.
	URLValidator func(string) error

	// BreakerProviders lists providers that get a circuit breaker.
	BreakerProviders []string
	Breaker          BreakerConfig
}

// Fetcher issues bounded outbound HTTP calls.
type Fetcher struct {
	client     *http.Client
	guarded    *http.Client
	validate   func(string) error
	breakers   *Breakers
	userAgent  string
	timeout    time.Duration
	maxBytes   int64
	retryDelay time.Duration
	log        *zap.SugaredLogger
}

// New creates a Fetcher from opts.
func New(opts Options) *Fetcher {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultTimeout
	}
	if opts.DefaultMaxBytes <= 0 {
		opts.DefaultMaxBytes = defaultMaxBytes
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	if opts.URLValidator == nil {
		opts.URLValidator = ValidateURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pinpoint/1.0"
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		}
	}

	validate := opts.URLValidator
	f := &Fetcher{
		client: &http.Client{Transport: transport},
		guarded: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("fetcher: too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("fetcher: redirect blocked: %w", err)
				}
				return nil
			},
		},
		validate:   validate,
		breakers:   NewBreakers(opts.Breaker, opts.BreakerProviders...),
		userAgent:  opts.UserAgent,
		timeout:    opts.DefaultTimeout,
		maxBytes:   opts.DefaultMaxBytes,
		retryDelay: opts.RetryDelay,
		log:        logger.GetLogger("fetcher"),
	}
	return f
}

// Breakers exposes the per-provider breakers (for stats).
func (f *Fetcher) Breakers() *Breakers {
	return f.breakers
}

// Do executes req. It always returns a non-nil Result.
func (f *Fetcher) Do(ctx context.Context, req Request) *Result {
	if req.Guarded {
		if err := f.validate(req.URL); err != nil {
			res := &Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: %v", ErrBlockedURL, err)}
			f.record(req, res)
			return res
		}
	}

	var res *Result
	if cb := f.breakers.For(req.Provider); cb != nil {
		err := cb.Execute(ctx, func() error {
			res = f.attemptWithRetry(ctx, req)
			return tripError(res)
		})
		if errors.Is(err, ErrCircuitOpen) {
			res = &Result{Outcome: OutcomeFailure, Err: err}
		}
	} else {
		res = f.attemptWithRetry(ctx, req)
	}

	f.record(req, res)
	return res
}

// GetJSON performs req and decodes a successful body into dst.
func (f *Fetcher) GetJSON(ctx context.Context, req Request, dst interface{}) (*Result, error) {
	res := f.Do(ctx, req)
	if !res.OK() {
		return res, res.Err
	}
	if res.Truncated {
		return res, fmt.Errorf("fetcher: %s response exceeded %d bytes", req.Provider, f.capFor(req))
	}
	if err := json.Unmarshal(res.Body, dst); err != nil {
		return res, fmt.Errorf("fetcher: malformed %s payload: %w", req.Provider, err)
	}
	return res, nil
}

// attemptWithRetry runs one attempt and, only on a timeout, one more after a
// fixed delay. A cancelled or expired parent context is never retried.
func (f *Fetcher) attemptWithRetry(ctx context.Context, req Request) *Result {
	res := f.attempt(ctx, req)
	res.Attempts = 1
	if res.Outcome != OutcomeTimeout || ctx.Err() != nil {
		return res
	}

	telemetry.ProviderRetries.WithLabelValues(providerLabel(req.Provider)).Inc()
	f.log.Debugw("retrying after timeout", "provider", req.Provider, "delay", f.retryDelay)

	select {
	case <-ctx.Done():
		return res
	case <-time.After(f.retryDelay):
	}

	res = f.attempt(ctx, req)
	res.Attempts = 2
	return res
}

func (f *Fetcher) attempt(ctx context.Context, req Request) *Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(actx, method, req.URL, nil)
	if err != nil {
		return &Result{Outcome: OutcomeFailure, Err: fmt.Errorf("fetcher: build request: %w", err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	client := f.client
	if req.Guarded {
		client = f.guarded
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return &Result{Outcome: classify(actx, err), Err: err}
	}
	defer resp.Body.Close()

	res := &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		FinalURL:   resp.Request.URL.String(),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		res.Outcome = OutcomeFailure
		res.Err = &StatusError{Code: resp.StatusCode}
		return res
	}

	limit := f.capFor(req)
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		res.Outcome = classify(actx, err)
		res.Err = fmt.Errorf("fetcher: read body: %w", err)
		return res
	}
	if int64(len(body)) > limit {
		body = body[:limit]
		res.Truncated = true
	}
	res.Body = body
	res.Outcome = OutcomeSuccess
	return res
}

func (f *Fetcher) capFor(req Request) int64 {
	if req.MaxBytes > 0 {
		return req.MaxBytes
	}
	return f.maxBytes
}

func (f *Fetcher) record(req Request, res *Result) {
	label := res.Outcome.String()
	if errors.Is(res.Err, ErrCircuitOpen) {
		label = "circuit_open"
	}
	telemetry.ProviderCalls.WithLabelValues(providerLabel(req.Provider), label).Inc()

	if !res.OK() {
		f.log.Debugw("outbound call failed",
			"provider", req.Provider,
			"outcome", label,
			"status", res.StatusCode,
			"attempts", res.Attempts,
			"error", res.Err)
	}
}

// classify maps a transport error to an outcome. Only the per-attempt
// deadline counts as a timeout; a cancelled parent is a failure.
func classify(actx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeFailure
}

// tripError decides what the breaker sees. Client errors (4xx) say nothing
// about provider health and do not count against it.
func tripError(res *Result) error {
	if res.OK() {
		return nil
	}
	var se *StatusError
	if errors.As(res.Err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests {
		return nil
	}
	if res.Err == nil {
		return errors.New("fetcher: call failed")
	}
	return res.Err
}

func providerLabel(p string) string {
	if p == "" {
		return "other"
	}
	return strings.ToLower(p)
}
