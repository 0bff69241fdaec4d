// Package metrics registers relay counters. Init must be called once at
// startup; the helpers are safe no-ops before that so pure logic tests
// don't need a registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "relay_"

var (
	registerOnce sync.Once

	eventsTotal     *prometheus.CounterVec
	movesTotal      *prometheus.CounterVec
	holdTimersTotal *prometheus.CounterVec
	resetsTotal     prometheus.Counter
)

// Init registers all relay metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "switch_events_total",
				Help: "Total switch events received by source",
			},
			[]string{"source"},
		)
		movesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "moves_total",
				Help: "Total relocation attempts by outcome",
			},
			[]string{"outcome"},
		)
		holdTimersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "hold_timers_total",
				Help: "Hold-timer transitions (armed, cancelled, fired, skipped)",
			},
			[]string{"transition"},
		)
		resetsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_resets_total",
				Help: "Total device resets performed",
			},
		)

		prometheus.MustRegister(eventsTotal, movesTotal, holdTimersTotal, resetsTotal)
	})
}

// EventReceived counts one inbound switch event.
func EventReceived(source string) {
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(source).Inc()
	}
}

// MoveRecorded counts one dispatcher outcome.
func MoveRecorded(outcome string) {
	if movesTotal != nil {
		movesTotal.WithLabelValues(outcome).Inc()
	}
}

// HoldTimer counts one hold-timer transition.
func HoldTimer(transition string) {
	if holdTimersTotal != nil {
		holdTimersTotal.WithLabelValues(transition).Inc()
	}
}

// ResetPerformed counts one device reset.
func ResetPerformed() {
	if resetsTotal != nil {
		resetsTotal.Inc()
	}
}
