package blockchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Mining Metrics
	blocksMinedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockchain_demo",
			Subsystem: "mining",
			Name:      "blocks_mined_total",
			Help:      "Total number of successful mining searches, labeled by operation (genesis, append, remine).",
		},
		[]string{"operation"},
	)

	miningDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blockchain_demo",
			Subsystem: "mining",
			Name:      "duration_seconds",
			Help:      "Histogram of mining search durations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		},
		[]string{"operation"},
	)

	hashesComputedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockchain_demo",
			Subsystem: "mining",
			Name:      "hashes_computed_total",
			Help:      "Total number of block hashes computed during mining searches.",
		},
	)

	miningCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockchain_demo",
			Subsystem: "mining",
			Name:      "cancelled_total",
			Help:      "Total number of mining searches abandoned because their context ended.",
		},
	)

	// Chain State Metrics
	chainLengthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blockchain_demo",
			Subsystem: "chain",
			Name:      "length",
			Help:      "Current number of blocks in the chain.",
		},
	)

	difficultyGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blockchain_demo",
			Subsystem: "chain",
			Name:      "difficulty",
			Help:      "Active mining difficulty (leading zero characters).",
		},
	)

	tamperEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockchain_demo",
			Subsystem: "chain",
			Name:      "tamper_events_total",
			Help:      "Total number of accepted tamper operations.",
		},
	)

	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockchain_demo",
			Subsystem: "chain",
			Name:      "validations_total",
			Help:      "Total chain validations, labeled by mode (link, full) and outcome (valid, invalid).",
		},
		[]string{"mode", "outcome"},
	)
)

func observeMining(operation string, miningTimeMs int64) {
	blocksMinedTotal.WithLabelValues(operation).Inc()
	miningDurationSeconds.WithLabelValues(operation).Observe(float64(miningTimeMs) / 1000)
}

func observeValidation(mode string, valid bool) {
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	validationsTotal.WithLabelValues(mode, outcome).Inc()
}
