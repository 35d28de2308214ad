// Package github is the engine's only gateway to the GitHub REST API.
//
// A Client wraps go-github's transport with the behaviour the engine needs
// from every call:
//
//   - quota accounting: each response's rate headers feed a shared Quota,
//     and a request waits for the reset instead of being rejected
//   - retries: 5xx and network failures are retried with capped, jittered
//     exponential backoff up to Config.MaxAttempts
//   - classification: every failure leaves this package as an apperror kind
//     (CredentialInvalid, RateLimitExceeded, UpstreamUnavailable, NotFound,
//     Forbidden, MalformedResponse)
//
// Payloads are returned raw and decoded strictly by the endpoint helpers in
// repos.go and commits.go.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/clock"
	"github.com/sakif/commit-streak/internal/metrics"
)

// Config tunes a Client. Zero fields fall back to DefaultConfig values.
type Config struct {
	BaseURL           string        `toml:"base_url"`
	MaxAttempts       int           `toml:"max_attempts"`
	BaseDelay         time.Duration `toml:"base_delay"`
	MaxDelay          time.Duration `toml:"max_delay"`
	MaxRateLimitWaits int           `toml:"max_rate_limit_waits"`
	RequestsPerSecond float64       `toml:"requests_per_second"` // 0 disables pacing
	PerPage           int           `toml:"per_page"`
	FetchStats        bool          `toml:"fetch_stats"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.github.com/",
		MaxAttempts:       4,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		MaxRateLimitWaits: 3,
		RequestsPerSecond: 5,
		PerPage:           100,
		FetchStats:        true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxRateLimitWaits <= 0 {
		c.MaxRateLimitWaits = d.MaxRateLimitWaits
	}
	if c.PerPage <= 0 || c.PerPage > 100 {
		c.PerPage = d.PerPage
	}
	return c
}

// secondaryLimitPause is how long to back off after a secondary rate limit
// that came without a Retry-After header.
const secondaryLimitPause = time.Minute

// Page is one successful API response.
type Page struct {
	Body       json.RawMessage
	NextPage   int // 0 when there is no next page
	StatusCode int
}

type Client struct {
	gh      *gh.Client
	cfg     Config
	quota   *Quota
	limiter *rate.Limiter
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithClock(c clock.Clock) Option { return func(cl *Client) { cl.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(cl *Client) { cl.metrics = m } }

// WithQuota shares an existing Quota instead of creating one.
func WithQuota(q *Quota) Option { return func(cl *Client) { cl.quota = q } }

// New creates a Client authenticated with token.
func New(token string, cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:    cfg,
		clock:  clock.Real{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.quota == nil {
		c.quota = NewQuota(c.clock, c.metrics)
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	c.gh = gh.NewClient(httpClient)

	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("github: parsing base URL %q: %w", cfg.BaseURL, err)
	}
	c.gh.BaseURL = u

	return c, nil
}

// Quota returns the quota this client reserves against.
func (c *Client) Quota() *Quota { return c.quota }

// Get performs GET path?params, waiting for quota and retrying transient
// failures. path is relative to the API base URL.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Page, error) {
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	// Quota gating is ours; stop go-github from short-circuiting requests on
	// its own copy of the rate state.
	ctx = context.WithValue(ctx, gh.BypassRateLimitCheck, true)

	attempt := 1
	rateWaits := 0
	for {
		if err := c.quota.Acquire(ctx); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("github: pacing %s: %w", path, err)
			}
		}

		req, err := c.gh.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("github: building request %s: %w", path, err)
		}

		var body json.RawMessage
		resp, err := c.gh.Do(ctx, req, &body)
		c.observeRate(resp)

		if err == nil {
			c.metrics.UpstreamRequest("ok")
			return &Page{Body: body, NextPage: resp.NextPage, StatusCode: resp.StatusCode}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.UpstreamRequest("canceled")
			return nil, ctxErr
		}

		f := c.classify(resp, err)
		switch f.kind {
		case failRateLimited:
			c.metrics.UpstreamRequest("rate_limited")
			c.quota.Exhaust(f.resetAt)
			rateWaits++
			if rateWaits > c.cfg.MaxRateLimitWaits {
				return nil, apperror.RateLimited(f.resetAt, err)
			}
			c.logger.Warn("github rate limited, waiting for reset",
				slog.String("path", path),
				slog.Time("resetAt", f.resetAt),
			)

		case failTransient:
			c.metrics.UpstreamRequest("transient")
			if attempt >= c.cfg.MaxAttempts {
				return nil, apperror.UpstreamUnavailable(attempt, err)
			}
			delay := c.backoff(attempt)
			c.logger.Debug("github request failed, retrying",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			c.metrics.UpstreamRetry()
			if err := c.clock.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			attempt++

		default:
			c.metrics.UpstreamRequest("failed")
			return nil, f.err
		}
	}
}

// backoff returns the delay before retry number attempt (1-based):
// BaseDelay doubled per attempt, capped at MaxDelay, with the upper half
// jittered.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 1; i < attempt && d < c.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}

func (c *Client) observeRate(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		return
	}
	c.quota.Update(resp.Rate.Limit, resp.Rate.Remaining, resp.Rate.Reset.Time)
}

type failureKind int

const (
	failFatal failureKind = iota
	failTransient
	failRateLimited
)

type failure struct {
	kind    failureKind
	err     error     // set for failFatal
	resetAt time.Time // set for failRateLimited
}

// classify decides what a failed call means for the retry loop.
func (c *Client) classify(resp *gh.Response, err error) failure {
	now := c.clock.Now()

	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		reset := rle.Rate.Reset.Time
		if !reset.After(now) {
			reset = now.Add(c.cfg.BaseDelay)
		}
		return failure{kind: failRateLimited, resetAt: reset}
	}

	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		pause := secondaryLimitPause
		if abuse.RetryAfter != nil {
			pause = *abuse.RetryAfter
		}
		return failure{kind: failRateLimited, resetAt: now.Add(pause)}
	}

	var accepted *gh.AcceptedError
	if errors.As(err, &accepted) {
		// 202: GitHub is still computing the payload.
		return failure{kind: failTransient}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return failure{kind: failFatal, err: apperror.MalformedResponse("invalid JSON", err)}
	}

	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		status := er.Response.StatusCode
		switch {
		case status == http.StatusUnauthorized:
			return failure{kind: failFatal, err: apperror.CredentialInvalid(err)}
		case status == http.StatusTooManyRequests ||
			(status == http.StatusForbidden && er.Response.Header.Get("X-RateLimit-Remaining") == "0"):
			return failure{kind: failRateLimited, resetAt: resetFromHeaders(er.Response.Header, now, c.cfg.BaseDelay)}
		case status == http.StatusForbidden:
			return failure{kind: failFatal, err: apperror.Forbidden(er.Message)}
		case status == http.StatusNotFound:
			return failure{kind: failFatal, err: apperror.NotFound("resource", requestPath(er.Response))}
		case status == http.StatusConflict:
			return failure{kind: failFatal, err: apperror.Conflict("resource", requestPath(er.Response))}
		case status >= 500:
			return failure{kind: failTransient}
		default:
			return failure{kind: failFatal, err: fmt.Errorf("github: unexpected status %d: %w", status, err)}
		}
	}

	// Transport-level failure (connection reset, timeout, DNS).
	return failure{kind: failTransient}
}

// resetFromHeaders reads Retry-After, then X-RateLimit-Reset; without either
// it waits fallback.
func resetFromHeaders(h http.Header, now time.Time, fallback time.Duration) time.Time {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if reset := time.Unix(unix, 0); reset.After(now) {
				return reset
			}
		}
	}
	return now.Add(fallback)
}

func requestPath(r *http.Response) string {
	if r.Request == nil || r.Request.URL == nil {
		return ""
	}
	return r.Request.URL.Path
}
