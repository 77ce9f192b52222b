package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"birdnest/internal/metrics"
)

const (
	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 5 * time.Second
	// DefaultStallWarning is when a still-running request gets logged.
	DefaultStallWarning = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// ClientConfig configures an upstream HTTP client.
type ClientConfig struct {
	URL          string
	Timeout      time.Duration
	StallWarning time.Duration
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c ClientConfig) stallWarning() time.Duration {
	if c.StallWarning <= 0 {
		return DefaultStallWarning
	}
	return c.StallWarning
}

// getter performs GET requests with the error taxonomy of this package.
type getter struct {
	operation string
	client    *http.Client
	stall     time.Duration
	log       *slog.Logger
}

func newGetter(operation string, cfg ClientConfig, log *slog.Logger) getter {
	if log == nil {
		log = slog.Default()
	}
	return getter{operation: operation, client: cfg.httpClient(), stall: cfg.stallWarning(), log: log}
}

// get fetches url and returns the body of a 2xx response.
func (g getter) get(ctx context.Context, url, accept string) (body []byte, err error) {
	defer func() {
		if ctx.Err() == nil {
			metrics.UpstreamRequests.WithLabelValues(g.operation, outcome(err)).Inc()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RequestError{URL: url, Err: err}
	}
	req.Header.Set("Accept", accept)

	start := time.Now()
	stall := time.AfterFunc(g.stall, func() {
		g.log.Warn("request seems to have stalled", "operation", g.operation, "url", url, "elapsed", time.Since(start))
	})
	defer stall.Stop()

	resp, err := g.client.Do(req)
	metrics.UpstreamLatency.WithLabelValues(g.operation).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
