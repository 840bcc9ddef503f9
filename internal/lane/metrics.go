package lane

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/tendermint/lanerelay/internal/race"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "lane"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Best header number of the source.
	SourceBestHeight metrics.Gauge
	// Best finalized header number of the source.
	SourceFinalizedHeight metrics.Gauge
	// Best finalized target header number known to the source.
	TargetAtSourceHeight metrics.Gauge
	// Best header number of the target.
	TargetBestHeight metrics.Gauge
	// Best finalized header number of the target.
	TargetFinalizedHeight metrics.Gauge
	// Best finalized source header number known to the target.
	SourceAtTargetHeight metrics.Gauge

	// Latest nonce generated at the source.
	SourceLatestGeneratedNonce metrics.Gauge
	// Latest nonce confirmed at the source.
	SourceLatestConfirmedNonce metrics.Gauge
	// Latest nonce received at the target.
	TargetLatestReceivedNonce metrics.Gauge
	// Latest nonce the target knows to be confirmed.
	TargetLatestConfirmedNonce metrics.Gauge

	// Number of times the lane loop has been restarted.
	Restarts metrics.Counter

	// Metrics of the delivery and receiving races.
	Race *race.Metrics
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	gauge := func(name, help string) metrics.Gauge {
		return prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      name,
			Help:      help,
		}, labels).With(labelsAndValues...)
	}

	return &Metrics{
		SourceBestHeight:      gauge("source_best_height", "Best header number of the source."),
		SourceFinalizedHeight: gauge("source_finalized_height", "Best finalized header number of the source."),
		TargetAtSourceHeight:  gauge("target_at_source_height", "Best finalized target header number known to the source."),
		TargetBestHeight:      gauge("target_best_height", "Best header number of the target."),
		TargetFinalizedHeight: gauge("target_finalized_height", "Best finalized header number of the target."),
		SourceAtTargetHeight:  gauge("source_at_target_height", "Best finalized source header number known to the target."),

		SourceLatestGeneratedNonce: gauge("source_latest_generated_nonce", "Latest nonce generated at the source."),
		SourceLatestConfirmedNonce: gauge("source_latest_confirmed_nonce", "Latest nonce confirmed at the source."),
		TargetLatestReceivedNonce:  gauge("target_latest_received_nonce", "Latest nonce received at the target."),
		TargetLatestConfirmedNonce: gauge("target_latest_confirmed_nonce", "Latest nonce the target knows to be confirmed."),

		Restarts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "restarts",
			Help:      "Number of times the lane loop has been restarted after a failure.",
		}, labels).With(labelsAndValues...),

		Race: race.PrometheusMetrics(namespace, labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		SourceBestHeight:           discard.NewGauge(),
		SourceFinalizedHeight:      discard.NewGauge(),
		TargetAtSourceHeight:       discard.NewGauge(),
		TargetBestHeight:           discard.NewGauge(),
		TargetFinalizedHeight:      discard.NewGauge(),
		SourceAtTargetHeight:       discard.NewGauge(),
		SourceLatestGeneratedNonce: discard.NewGauge(),
		SourceLatestConfirmedNonce: discard.NewGauge(),
		TargetLatestReceivedNonce:  discard.NewGauge(),
		TargetLatestConfirmedNonce: discard.NewGauge(),
		Restarts:                   discard.NewCounter(),
		Race:                       race.NopMetrics(),
	}
}

func (m *Metrics) updateSourceState(st SourceClientState) {
	m.SourceBestHeight.Set(float64(st.BestSelf.Height()))
	m.SourceFinalizedHeight.Set(float64(st.BestFinalizedSelf.Height()))
	if st.BestFinalizedPeerAtBestSelf != nil {
		m.TargetAtSourceHeight.Set(float64(st.BestFinalizedPeerAtBestSelf.Height()))
	}
}

func (m *Metrics) updateTargetState(st TargetClientState) {
	m.TargetBestHeight.Set(float64(st.BestSelf.Height()))
	m.TargetFinalizedHeight.Set(float64(st.BestFinalizedSelf.Height()))
	if st.BestFinalizedPeerAtBestSelf != nil {
		m.SourceAtTargetHeight.Set(float64(st.BestFinalizedPeerAtBestSelf.Height()))
	}
}
