package race

import (
	"time"

	"github.com/tendermint/lanerelay/libs/log"
)

// DefaultProgressInterval is how often the race progress is logged.
const DefaultProgressInterval = 10 * time.Second

type options struct {
	logger           log.Logger
	metrics          *Metrics
	backoff          BackoffFactory
	progressInterval time.Duration
	sourceName       string
	targetName       string
}

func defaultOptions() options {
	return options{
		logger:           log.NewNopLogger(),
		metrics:          NopMetrics(),
		backoff:          DefaultBackoff,
		progressInterval: DefaultProgressInterval,
		sourceName:       "Source",
		targetName:       "Target",
	}
}

// Option sets a parameter of the race loop.
type Option func(*options)

// Logger sets the logger of the race loop.
func Logger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics the race loop reports to.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// RetryBackoff sets the factory of retry policies used after connection
// errors. Each side gets its own policy.
func RetryBackoff(f BackoffFactory) Option {
	return func(o *options) {
		o.backoff = f
	}
}

// ProgressInterval sets how often the race progress is logged.
func ProgressInterval(d time.Duration) Option {
	return func(o *options) {
		o.progressInterval = d
	}
}

// Names sets the names of the race source and target used in logs.
func Names(source, target string) Option {
	return func(o *options) {
		o.sourceName = source
		o.targetName = target
	}
}
