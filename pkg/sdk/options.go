package hitdex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	searchuc "github.com/kailas-cloud/hitdex/internal/usecase/search"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver    string // "valkey" or "redis", empty for no archive
	addrs     []string
	password  string
	keyPrefix string

	archiveTTL time.Duration
	archive    searchuc.Archive // overrides the database archive in tests

	filterDepth   int
	maxDistance   int
	ratio         float64
	verifyIndex   bool
	eventLogSize  int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	ratePerSec    float64
	burst         int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey archives removed sessions in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis archives removed sessions in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithArchiveTTL sets how long archived snapshots are kept. Default: 24h.
func WithArchiveTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.archiveTTL = ttl
	})
}

// WithKeyPrefix namespaces archive keys. Default: "hitdex:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithFilterDepth sets the number of filter slots per session. Default: 3.
func WithFilterDepth(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.filterDepth = n
	})
}

// WithEditDistance bounds fuzzy name matching: two names match when their edit
// distance is at most min(limit, ratio × shorter length).
func WithEditDistance(limit int, ratio float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxDistance = limit
		c.ratio = ratio
	})
}

// WithVerifyIndex checks the row index after every mutation and rebuilds on divergence.
func WithVerifyIndex() Option {
	return optionFunc(func(c *clientConfig) {
		c.verifyIndex = true
	})
}

// WithEventLogSize sets how many notifications each session retains for Events.
func WithEventLogSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.eventLogSize = n
	})
}

// WithIdleTimeout removes sessions without activity for d, checked every interval.
func WithIdleTimeout(d, interval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.idleTimeout = d
		c.sweepInterval = interval
	})
}

// WithRateLimit limits accepted hits per session.
func WithRateLimit(perSec float64, burst int) Option {
	return optionFunc(func(c *clientConfig) {
		c.ratePerSec = perSec
		c.burst = burst
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

func withArchive(a searchuc.Archive) Option {
	return optionFunc(func(c *clientConfig) {
		c.archive = a
	})
}
