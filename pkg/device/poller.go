package device

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is the telemetry refresh period.
const DefaultPollInterval = 10 * time.Second

// RefreshFunc receives every successfully parsed status.
type RefreshFunc func(Status) error

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Interval between refreshes. Defaults to DefaultPollInterval.
	Interval time.Duration

	// Timeout bounds each query. Defaults to DefaultQueryTimeout.
	Timeout time.Duration

	// MaxBackoff caps the retry delay after consecutive failures.
	// Defaults to DefaultMaxBackoff.
	MaxBackoff time.Duration

	// Logger for refresh failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Poller periodically reads the general status and hands it to a
// RefreshFunc. After a failure the next attempt is delayed by an
// exponential backoff that starts at the interval.
type Poller struct {
	device  Device
	refresh RefreshFunc
	config  PollerConfig
}

// NewPoller creates a Poller for d.
func NewPoller(d Device, refresh RefreshFunc, config PollerConfig) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultQueryTimeout
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Poller{device: d, refresh: refresh, config: config}
}

// Poll runs one refresh.
func (p *Poller) Poll(ctx context.Context) error {
	resp, err := Query(ctx, p.device, QueryGeneralStatus, p.config.Timeout)
	if err != nil {
		return err
	}
	status, err := ParseGeneralStatus(resp)
	if err != nil {
		return err
	}
	return p.refresh(status)
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	backoff := NewBackoff(BackoffConfig{
		Initial: p.config.Interval,
		Max:     p.config.MaxBackoff,
		Jitter:  DefaultBackoffJitter,
	})

	for {
		delay := p.config.Interval
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = backoff.Next()
			p.config.Logger.Warn("telemetry refresh failed",
				"error", err, "attempt", backoff.Attempts(), "retry", delay)
		} else {
			backoff.Reset()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
