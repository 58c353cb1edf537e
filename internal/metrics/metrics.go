// Package metrics exposes Prometheus counters for the allocation engine.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "allocation"

var (
	offersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "offers_created_total",
			Help:      "Count of offers created, by group.",
		},
		[]string{"group"},
	)
	offersResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "offers_resolved_total",
			Help:      "Count of offers accepted or rejected, by group, outcome and whether the deadline triggered it.",
		},
		[]string{"group", "outcome", "automatic"},
	)
	candidatesExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "candidates_exhausted_total",
			Help:      "Count of candidates rejected after running out of preferences.",
		},
		[]string{"group"},
	)
	roundsRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "rounds_total",
			Help:      "Count of round passes processed, by group.",
		},
		[]string{"group"},
	)
	groupRound = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "group_round",
			Help:      "Current round number of each group.",
		},
		[]string{"group"},
	)
)

var registerMetrics sync.Once

// Register all metrics on reg.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(offersCreated)
		reg.MustRegister(offersResolved)
		reg.MustRegister(candidatesExhausted)
		reg.MustRegister(roundsRun)
		reg.MustRegister(groupRound)
	})
}

func RecordOfferCreated(group string) {
	offersCreated.WithLabelValues(group).Inc()
}

func RecordOfferResolved(group, outcome string, automatic bool) {
	offersResolved.WithLabelValues(group, outcome, strconv.FormatBool(automatic)).Inc()
}

func RecordCandidateExhausted(group string) {
	candidatesExhausted.WithLabelValues(group).Inc()
}

func RecordRound(group string, round int) {
	roundsRun.WithLabelValues(group).Inc()
	groupRound.WithLabelValues(group).Set(float64(round))
}
