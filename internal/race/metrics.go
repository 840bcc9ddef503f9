package race

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "race"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Best nonce at the race source.
	BestNonceAtSource metrics.Gauge
	// Best nonce at the race target.
	BestNonceAtTarget metrics.Gauge
	// Number of generated proofs.
	ProofsGenerated metrics.Counter
	// Number of submitted proofs.
	ProofsSubmitted metrics.Counter
	// Number of nonces in submitted proofs.
	NoncesSubmitted metrics.Counter
	// Number of submitted transactions that were lost, or finalized without
	// advancing the target. Labeled by "outcome".
	TransactionsFailed metrics.Counter
	// Number of failed client calls. Labeled by "side" and "kind".
	ClientErrors metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue"). Every metric is also labeled by "race", which is set with
// ForRace before the metrics are used.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	labels = append(labels, "race")
	return &Metrics{
		BestNonceAtSource: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "best_nonce_at_source",
			Help:      "Best nonce known to the race source.",
		}, labels).With(labelsAndValues...),
		BestNonceAtTarget: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "best_nonce_at_target",
			Help:      "Best nonce known to the race target.",
		}, labels).With(labelsAndValues...),
		ProofsGenerated: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "proofs_generated",
			Help:      "Number of proofs generated at the race source.",
		}, labels).With(labelsAndValues...),
		ProofsSubmitted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "proofs_submitted",
			Help:      "Number of proofs submitted to the race target.",
		}, labels).With(labelsAndValues...),
		NoncesSubmitted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "nonces_submitted",
			Help:      "Number of nonces in the proofs submitted to the race target.",
		}, labels).With(labelsAndValues...),
		TransactionsFailed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "transactions_failed",
			Help:      "Number of submitted transactions that were lost or did not advance the target.",
		}, append(labels[:len(labels):len(labels)], "outcome")).With(labelsAndValues...),
		ClientErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "client_errors",
			Help:      "Number of failed client calls.",
		}, append(labels[:len(labels):len(labels)], "side", "kind")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BestNonceAtSource:  discard.NewGauge(),
		BestNonceAtTarget:  discard.NewGauge(),
		ProofsGenerated:    discard.NewCounter(),
		ProofsSubmitted:    discard.NewCounter(),
		NoncesSubmitted:    discard.NewCounter(),
		TransactionsFailed: discard.NewCounter(),
		ClientErrors:       discard.NewCounter(),
	}
}

// ForRace returns metrics labeled with the race name.
func (m *Metrics) ForRace(name string) *Metrics {
	return &Metrics{
		BestNonceAtSource:  m.BestNonceAtSource.With("race", name),
		BestNonceAtTarget:  m.BestNonceAtTarget.With("race", name),
		ProofsGenerated:    m.ProofsGenerated.With("race", name),
		ProofsSubmitted:    m.ProofsSubmitted.With("race", name),
		NoncesSubmitted:    m.NoncesSubmitted.With("race", name),
		TransactionsFailed: m.TransactionsFailed.With("race", name),
		ClientErrors:       m.ClientErrors.With("race", name),
	}
}
