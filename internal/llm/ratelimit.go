package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"medassist-chatbot/internal/metrics"
)

// LimitConfig bounds the request rate and concurrency towards a provider.
// Zero fields disable the corresponding limit.
type LimitConfig struct {
	RequestsPerMinute float64
	MaxConcurrent     int
}

// RateLimitedClient wraps any Client and waits for a permit before each
// call.  Waiting respects ctx; a cancelled wait returns ctx's error and the
// inner client is never called.
type RateLimitedClient struct {
	inner     Client
	limiter   *rate.Limiter
	semaphore chan struct{}
}

// NewRateLimitedClient wraps inner.  With a zero config the wrapper passes
// calls straight through.
func NewRateLimitedClient(inner Client, cfg LimitConfig) *RateLimitedClient {
	c := &RateLimitedClient{inner: inner}
	if cfg.RequestsPerMinute > 0 {
		rps := cfg.RequestsPerMinute / 60.0
		burst := int(rps * 2) // two seconds worth of requests
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if cfg.MaxConcurrent > 0 {
		c.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return c
}

// Model implements Client.
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Chat implements Client.
func (c *RateLimitedClient) Chat(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if c.semaphore != nil {
		select {
		case c.semaphore <- struct{}{}:
			defer func() { <-c.semaphore }()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		metrics.RateLimitWaitSeconds.WithLabelValues(c.inner.Model()).Observe(waited.Seconds())
	}
	return c.inner.Chat(ctx, messages)
}
