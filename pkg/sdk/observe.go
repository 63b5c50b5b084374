package hitdex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/hitdex/internal/domain"
)

// Operation statuses.
const (
	statusOK          = "ok"
	statusInvalid     = "invalid"
	statusNotFound    = "not_found"
	statusStopped     = "stopped"
	statusRateLimited = "rate_limited"
	statusCanceled    = "canceled"
	statusError       = "error"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	hits       *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitdex",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "SDK operations by type and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hitdex",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds. Queries wait for the session's queued work.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitdex",
			Subsystem: "sdk",
			Name:      "hits_total",
			Help:      "Hits passed to Search.Ingest by outcome.",
		}, []string{"outcome"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.hits); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("hitdex: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("hitdex: register metric: %w", err)
	}
	return nil
}

// statusOf classifies an operation error. Caller mistakes and lifecycle outcomes are
// kept apart from engine failures.
func statusOf(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, domain.ErrRateLimited):
		return statusRateLimited
	case errors.Is(err, domain.ErrSessionStopped), errors.Is(err, domain.ErrSessionClosed):
		return statusStopped
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		return statusNotFound
	case errors.Is(err, domain.ErrInvalidSort), errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrInvalidSlot), errors.Is(err, domain.ErrMalformedHit),
		errors.Is(err, domain.ErrArchiveDisabled):
		return statusInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusCanceled
	}
	return statusError
}

// observer provides logging and metrics for SDK operations.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op string, start time.Time, err error, attrs ...any) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	status := statusOf(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}
	if o.logger == nil {
		return
	}

	attrs = append(attrs, "op", op, "status", status, "duration", dur)
	switch status {
	case statusOK:
		o.logger.Debug("operation completed", attrs...)
	case statusError:
		o.logger.Warn("operation failed", append(attrs, "error", err)...)
	default:
		o.logger.Info("operation rejected", append(attrs, "error", err)...)
	}
}

// observeIngest records one Ingest call with its per-hit outcome counts.
func (o *observer) observeIngest(start time.Time, sessionID string, res IngestResult, err error) {
	if o == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.hits.WithLabelValues("accepted").Add(float64(res.Accepted))
		o.metrics.hits.WithLabelValues("malformed").Add(float64(res.Malformed))
		o.metrics.hits.WithLabelValues("rate_limited").Add(float64(res.RateLimited))
	}
	if res.Stopped && err == nil {
		err = domain.ErrSessionStopped
	}
	o.observe("ingest", start, err,
		"session_id", sessionID,
		"accepted", res.Accepted,
		"malformed", res.Malformed,
		"rate_limited", res.RateLimited,
	)
}
