// Package dexscreener is the market data client for the DexScreener aggregator.
package dexscreener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-phoenix-scanner/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL           = "https://api.dexscreener.com"
	DefaultTimeout           = 10 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultMaxDelay          = 5 * time.Second
	DefaultRequestsPerMinute = 300

	// MaxAddressesPerRequest is the provider ceiling for /tokens/v1.
	MaxAddressesPerRequest = 30

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// ErrTooManyAddresses is returned when FetchMany is called with more than 30 addresses.
var ErrTooManyAddresses = errors.New("dexscreener: more than 30 addresses per request")

// statusError is a non-2xx provider response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("dexscreener: unexpected status %d", e.code)
}

// Client queries the DexScreener REST API.
// All calls are throttled by a shared limiter and guarded by a circuit breaker;
// failures are returned as tagged results, never as errors.
type Client struct {
	baseURL    string
	http       *resty.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	timeout    time.Duration
	maxRetries int
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets retry attempts for transport errors, 429 and 5xx.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRateLimit sets the request budget per minute. Zero or negative disables throttling.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// New creates a DexScreener client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		http:       resty.New(),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMinute), 1),
		logger:     zap.NewNop(),
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(c.maxRetries).
		SetRetryWaitTime(DefaultRetryDelay).
		SetRetryMaxWaitTime(DefaultMaxDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	logger := c.logger
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "dexscreener",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			// a 4xx is the provider answering, not the provider failing
			var se *statusError
			if errors.As(err, &se) {
				return se.code < 500 && se.code != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// Search queries the keyword search endpoint.
func (c *Client) Search(ctx context.Context, keyword string) Result[[]Pair] {
	var body searchResponse
	req := func(r *resty.Request) *resty.Request {
		return r.SetQueryParam("q", keyword).SetResult(&body)
	}
	if err := c.get(ctx, "search", "/latest/dex/search", req); err != nil {
		c.logger.Warn("search failed", zap.String("term", keyword), zap.Error(err))
		return failed[[]Pair](err)
	}
	if len(body.Pairs) == 0 {
		return empty[[]Pair]()
	}
	return ok(body.Pairs)
}

// FetchByAddress returns the most liquid pair that has the token as its base.
func (c *Client) FetchByAddress(ctx context.Context, chain, address string) Result[Pair] {
	var pairs []Pair
	path := "/token-pairs/v1/" + url.PathEscape(chain) + "/" + url.PathEscape(address)
	req := func(r *resty.Request) *resty.Request {
		return r.SetResult(&pairs)
	}
	if err := c.get(ctx, "token_pairs", path, req); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return empty[Pair]()
		}
		c.logger.Warn("fetch by address failed",
			zap.String("chain", chain), zap.String("address", address), zap.Error(err))
		return failed[Pair](err)
	}
	best, found := SelectCanonical(pairs, address)
	if !found {
		return empty[Pair]()
	}
	return ok(best)
}

// FetchMany returns pairs for up to 30 addresses in one request.
func (c *Client) FetchMany(ctx context.Context, chain string, addresses []string) Result[[]Pair] {
	if len(addresses) == 0 {
		return empty[[]Pair]()
	}
	if len(addresses) > MaxAddressesPerRequest {
		return failed[[]Pair](ErrTooManyAddresses)
	}

	escaped := make([]string, len(addresses))
	for i, a := range addresses {
		escaped[i] = url.PathEscape(a)
	}

	var pairs []Pair
	path := "/tokens/v1/" + url.PathEscape(chain) + "/" + strings.Join(escaped, ",")
	req := func(r *resty.Request) *resty.Request {
		return r.SetResult(&pairs)
	}
	if err := c.get(ctx, "tokens", path, req); err != nil {
		c.logger.Warn("fetch many failed",
			zap.String("chain", chain), zap.Int("addresses", len(addresses)), zap.Error(err))
		return failed[[]Pair](err)
	}
	if len(pairs) == 0 {
		return empty[[]Pair]()
	}
	return ok(pairs)
}

// FetchManyChunked splits addresses into provider-sized chunks.
// Failed chunks are skipped; the result is failed only if every chunk failed.
func (c *Client) FetchManyChunked(ctx context.Context, chain string, addresses []string) Result[[]Pair] {
	var (
		all      []Pair
		failures int
		chunks   int
		lastErr  error
	)
	for start := 0; start < len(addresses); start += MaxAddressesPerRequest {
		end := min(start+MaxAddressesPerRequest, len(addresses))
		chunks++
		res := c.FetchMany(ctx, chain, addresses[start:end])
		if res.Failed() {
			failures++
			lastErr = res.Err
			continue
		}
		all = append(all, res.Value...)
	}
	switch {
	case chunks > 0 && failures == chunks:
		return failed[[]Pair](lastErr)
	case len(all) == 0:
		return empty[[]Pair]()
	default:
		return ok(all)
	}
}

// get performs a throttled, breaker-guarded GET.
func (c *Client) get(ctx context.Context, endpoint, path string, build func(*resty.Request) *resty.Request) error {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		observability.RecordProviderRequest(endpoint, "throttled", time.Since(start).Seconds())
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := build(c.http.R().SetContext(ctx)).Get(path)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", path, err)
		}
		if resp.IsError() {
			return nil, &statusError{code: resp.StatusCode()}
		}
		return nil, nil
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.RecordProviderRequest(endpoint, outcome, time.Since(start).Seconds())
	return err
}
