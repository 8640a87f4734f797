package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultProbeInterval is the pause between health probe attempts.
const DefaultProbeInterval = 2 * time.Second

// HealthProbe polls an HTTP endpoint until it responds or a deadline
// elapses. It never returns an error: connection failures are retried and a
// missed deadline reports false.
type HealthProbe struct {
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthProbe creates a probe with the default 2s retry interval.
func NewHealthProbe(logger *slog.Logger) *HealthProbe {
	return NewHealthProbeWithInterval(DefaultProbeInterval, logger)
}

// NewHealthProbeWithInterval creates a probe with a custom retry interval.
func NewHealthProbeWithInterval(interval time.Duration, logger *slog.Logger) *HealthProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthProbe{
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		logger:   logger,
	}
}

// Await polls url with GET until it is reachable or timeout elapses. Any
// response with status below 500 counts as reachable: frameworks often
// serve 404 or 403 while the app is still warming up, but a 5xx or a
// refused connection means not-yet-ready.
func (p *HealthProbe) Await(ctx context.Context, url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		if ctx.Err() != nil {
			return false
		}

		if p.attempt(ctx, url) {
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.logger.Debug("health probe deadline elapsed", "url", url, "timeout", timeout.String())
			return false
		}

		wait := p.interval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (p *HealthProbe) attempt(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Debug("health probe request invalid", "url", url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
