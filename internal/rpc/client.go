package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stinkmap/stinkmap/internal/metrics"
	"github.com/stinkmap/stinkmap/internal/models"
)

const (
	// DefaultTimeout bounds a call when the caller configures none.
	DefaultTimeout = 15 * time.Second

	callbackParam    = "callback"
	cacheBusterParam = "t"
	tokenPrefix      = "jsonp_callback_"
	maxScriptBytes   = 32 << 20
)

// Client talks to the append-only endpoint using the callback-script pattern:
// every GET names a callback token and the response body is a script that
// invokes it. The client owns the token table; no global names leak out.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger

	newToken func() string
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingCall
}

type pendingCall struct {
	done chan result
}

type result struct {
	payload json.RawMessage
	err     error
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the HTTP client used to load scripts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTokenSource overrides correlation token generation (tests).
func WithTokenSource(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newToken = fn
		}
	}
}

// WithClock overrides the cache-buster clock (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a client for endpoint. A non-positive timeout falls
// back to DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint URL not configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		endpoint:   u,
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     slog.Default(),
		newToken:   func() string { return tokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") },
		now:        time.Now,
		pending:    make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call issues one request with params and waits for its callback, the
// timeout, or ctx. Completion order across concurrent calls is unspecified.
func (c *Client) Call(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("endpoint client not initialised")
	}

	token, call := c.register()
	target := c.buildURL(params, token)

	loadCtx, cancelLoad := context.WithCancel(ctx)
	defer cancelLoad()
	go c.load(loadCtx, token, target)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-call.done:
		return res.payload, res.err
	case <-timer.C:
		c.resolve(token, result{err: fmt.Errorf("%w after %s", ErrTimedOut, c.timeout)})
	case <-ctx.Done():
		c.resolve(token, result{err: fmt.Errorf("%w: %w", ErrTransport, ctx.Err())})
	}
	// Either our resolve won or the loader resolved first; exactly one
	// result is buffered for this call.
	res := <-call.done
	return res.payload, res.err
}

// Go runs Call in the background and hands the outcome to fn. The token is
// already released before fn runs, and a panicking fn is recovered.
func (c *Client) Go(ctx context.Context, params url.Values, fn func(json.RawMessage, error)) {
	go func() {
		payload, err := c.Call(ctx, params)
		if fn == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("callback handler panicked", slog.Any("panic", r))
			}
		}()
		fn(payload, err)
	}()
}

// Dispatch executes a callback script against the token table. It returns
// false when the named callback is not (or no longer) pending, so repeated
// invocations are harmless.
func (c *Client) Dispatch(script []byte) bool {
	name, payload, err := parseInvocation(script)
	if err != nil {
		c.logger.Debug("ignoring script", slog.Any("error", err))
		return false
	}
	return c.deliver(name, payload)
}

// deliver settles token with payload, turning {success:false} into a
// ServerError.
func (c *Client) deliver(token string, payload json.RawMessage) bool {
	if failure := payloadFailure(payload); failure != nil {
		return c.resolve(token, result{err: failure})
	}
	return c.resolve(token, result{payload: payload})
}

// Pending reports how many calls are awaiting their callback.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// FetchAll loads every report. Records with unknown values are kept; array
// elements that are not objects at all are skipped.
func (c *Client) FetchAll(ctx context.Context) ([]models.Report, error) {
	start := time.Now()
	payload, err := c.Call(ctx, nil)
	metrics.ObserveCall("fetch", outcomeOf(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch reports: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("fetch reports: %w: expected an array: %v", ErrTransport, err)
	}

	reports := make([]models.Report, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var report models.Report
		if err := json.Unmarshal(item, &report); err != nil {
			skipped++
			continue
		}
		reports = append(reports, report)
	}
	if skipped > 0 {
		c.logger.Debug("skipped non-object records", slog.Int("count", skipped))
	}
	return reports, nil
}

// Submit sends one report. The acknowledgment payload is returned as-is.
func (c *Client) Submit(ctx context.Context, report models.Report) (json.RawMessage, error) {
	start := time.Now()
	payload, err := c.Call(ctx, report.Values())
	metrics.ObserveCall("submit", outcomeOf(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("submit report: %w", err)
	}
	return payload, nil
}

func (c *Client) register() (string, *pendingCall) {
	call := &pendingCall{done: make(chan result, 1)}
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		token := c.newToken()
		if _, taken := c.pending[token]; taken {
			continue
		}
		c.pending[token] = call
		return token, call
	}
}

// resolve removes token from the table and delivers res. Only the first
// resolve for a token has any effect.
func (c *Client) resolve(token string, res result) bool {
	c.mu.Lock()
	call, ok := c.pending[token]
	if ok {
		delete(c.pending, token)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	call.done <- res
	return true
}

func (c *Client) buildURL(params url.Values, token string) string {
	u := *c.endpoint
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set(callbackParam, token)
	query.Set(cacheBusterParam, strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = query.Encode()
	return u.String()
}

// load fetches and runs the script for token. Whatever happens, the token is
// settled before load returns.
func (c *Client) load(ctx context.Context, token, target string) {
	var loadErr error
	defer func() {
		if r := recover(); r != nil {
			loadErr = fmt.Errorf("script load panicked: %v", r)
		}
		if loadErr == nil {
			loadErr = errors.New("response did not invoke the callback")
		}
		if c.resolve(token, result{err: fmt.Errorf("%w: %w", ErrTransport, loadErr)}) {
			c.logger.Warn("endpoint request failed", slog.String("token", token), slog.Any("error", loadErr))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		loadErr = err
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		loadErr = err
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		loadErr = fmt.Errorf("endpoint returned %s", resp.Status)
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes))
	if err != nil {
		loadErr = fmt.Errorf("read response: %w", err)
		return
	}
	// A response only ever settles the token it was requested for; naming
	// another in-flight token must not resolve that call.
	name, payload, err := parseInvocation(body)
	if err != nil {
		loadErr = err
		return
	}
	if name != token {
		loadErr = fmt.Errorf("response invoked %q, not the requested callback", name)
		return
	}
	c.deliver(token, payload)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrTimedOut):
		return metrics.OutcomeTimeout
	case IsServerError(err):
		return metrics.OutcomeServerError
	default:
		return metrics.OutcomeTransport
	}
}
