// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ticks counts scheduler loop iterations.
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigawatch_scheduler_ticks_total",
		Help: "Number of scheduler iterations executed.",
	})

	// TickErrors counts iterations that ended in an error outcome.
	TickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigawatch_scheduler_tick_errors_total",
		Help: "Number of scheduler iterations that ended in an error.",
	})

	// SMSSent counts outbound keyword SMSes.
	SMSSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigawatch_sms_sent_total",
		Help: "Number of balance-query SMSes sent to the carrier shortcode.",
	})

	// ParseMisses counts inbox entries skipped for unparseable dates.
	ParseMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigawatch_sms_parse_misses_total",
		Help: "Number of inbox SMSes whose timestamp could not be reconstructed.",
	})

	// ObservationsInserted counts rows actually written to the store.
	ObservationsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigawatch_observations_inserted_total",
		Help: "Number of balance observations persisted.",
	})

	// RemainingPercentage mirrors the latest observed percentage.
	RemainingPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigawatch_remaining_percentage",
		Help: "Latest observed remaining data allowance in percent.",
	})

	// RemainingDataMB mirrors the latest observed remaining megabytes.
	RemainingDataMB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigawatch_remaining_data_mb",
		Help: "Latest observed remaining data allowance in megabytes.",
	})
)
