// Package collyfetcher implements pipeline.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/policy/retry"
)

// DefaultHeaders is the browser-like header set applied to every request.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Connection":      "keep-alive",
	}
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
}

// Fetcher fetches single pages through a Colly collector, retrying
// transient failures per the injected policy.
type Fetcher struct {
	cfg       Config
	policy    *retry.Policy
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, policy *retry.Policy, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:       cfg,
		policy:    policy,
		transport: newHTTPTransport(),
		logger:    logger,
	}
}

// Fetch executes an HTTP GET for the target, retrying transient failures
// with backoff. The returned error is a *pipeline.FetchError classifying
// the final failure.
func (f *Fetcher) Fetch(ctx context.Context, target pipeline.Target) (pipeline.FetchResponse, error) {
	if _, err := url.ParseRequestURI(target.URL); err != nil {
		return pipeline.FetchResponse{}, &pipeline.FetchError{Kind: pipeline.FailureBadURL, Err: err}
	}

	for attempt := 0; ; attempt++ {
		resp, err := f.fetchOnce(ctx, target.URL)
		if err == nil {
			return resp, nil
		}
		if f.policy == nil || !f.policy.ShouldRetry(err, attempt) {
			return pipeline.FetchResponse{}, err
		}
		backoff := f.policy.Backoff(attempt)
		f.logger.Warn("retrying fetch",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return pipeline.FetchResponse{}, &pipeline.FetchError{Kind: pipeline.FailureConnection, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (pipeline.FetchResponse, error) {
	var (
		result    pipeline.FetchResponse
		fetchErr  error
		errStatus int
	)
	start := time.Now()

	collector := f.newCollector()
	collector.OnRequest(func(r *colly.Request) {
		for key, value := range f.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = pipeline.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			errStatus = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return pipeline.FetchResponse{}, classify(ctx.Err(), 0)
	case visitErr := <-done:
		if fetchErr != nil {
			return pipeline.FetchResponse{}, classify(fetchErr, errStatus)
		}
		if visitErr != nil {
			return pipeline.FetchResponse{}, classify(visitErr, 0)
		}
		return result, nil
	}
}

func (f *Fetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(f.transport)
	return c
}

// classify maps transport and status errors onto the failure taxonomy.
func classify(err error, statusCode int) *pipeline.FetchError {
	switch {
	case statusCode != 0:
		return &pipeline.FetchError{
			Kind:       pipeline.FailureHTTPStatus,
			StatusCode: statusCode,
			Err:        err,
		}
	case isTimeout(err):
		return &pipeline.FetchError{Kind: pipeline.FailureTimeout, Err: err}
	case isBadURL(err):
		return &pipeline.FetchError{Kind: pipeline.FailureBadURL, Err: err}
	default:
		return &pipeline.FetchError{Kind: pipeline.FailureConnection, Err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// The collector surfaces client timeouts as wrapped url.Errors whose
	// text is the only classification signal left.
	return err != nil && strings.Contains(err.Error(), "Client.Timeout")
}

func isBadURL(err error) bool {
	if errors.Is(err, colly.ErrMissingURL) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		_, parseErr := url.ParseRequestURI(urlErr.URL)
		return parseErr != nil
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ pipeline.Fetcher = (*Fetcher)(nil)
