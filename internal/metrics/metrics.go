// Package metrics defines the collector's Prometheus instrumentation.
//
// Key metrics:
//   - tick write/dedup throughput per source
//   - snapshot poll cycles and fetch errors
//   - delta stream message, reconnect, and drop counts
//   - discovered/expired instruments per window class
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_ticks_written_total",
		Help: "Tick rows persisted, by source (rest or ws).",
	}, []string{"source"})

	TicksDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_ticks_deduped_total",
		Help: "Tick observations skipped because best prices were unchanged.",
	})

	TickWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_tick_write_errors_total",
		Help: "Failed tick inserts.",
	})

	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_poll_cycles_total",
		Help: "Completed snapshot poll cycles.",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_poll_errors_total",
		Help: "Failed per-side snapshot fetches.",
	})

	WSMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_ws_messages_total",
		Help: "Messages received on the delta stream.",
	})

	WSReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_ws_reconnects_total",
		Help: "Delta stream (re)connections.",
	})

	DeltasApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_deltas_applied_total",
		Help: "Order-book deltas applied to tracked tokens.",
	})

	DeltasDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_deltas_dropped_total",
		Help: "Deltas discarded because their token is not tracked.",
	})

	InstrumentsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_instruments_discovered_total",
		Help: "Newly registered instruments, by window class.",
	}, []string{"class"})

	InstrumentsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_instruments_expired_total",
		Help: "Instruments retired after close plus grace, by window class.",
	}, []string{"class"})

	ActiveInstruments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_active_instruments",
		Help: "Instruments currently tracked across all window classes.",
	})
)
