// Package metrics exposes bridge activity as Prometheus collectors.
package metrics

import (
	stdErrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/internal/abi"
)

// Outcome labels for EntryCalls.
const (
	OutcomeOK     = "ok"
	OutcomeThrown = "thrown"
	OutcomeFatal  = "fatal"
	OutcomeError  = "error"
)

// Metrics holds all Prometheus metrics of one bridge.
type Metrics struct {
	// Entry point metrics
	EntryCalls    *prometheus.CounterVec
	EntryDuration *prometheus.HistogramVec

	// Handle registry metrics
	LiveHandles prometheus.Gauge

	// Heap metrics
	HeapBrk        prometheus.Gauge
	HeapFreeBytes  prometheus.Gauge
	HeapFreeBlocks prometheus.Gauge
	HeapGrowths    prometheus.Counter
	MemoryPages    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntryCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valbridge_entry_calls_total",
				Help: "Total number of entry point calls made by the sandboxed module",
			},
			[]string{"function", "outcome"},
		),
		EntryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valbridge_entry_duration_seconds",
				Help:    "Entry point call duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"function"},
		),
		LiveHandles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "valbridge_handles_live",
				Help: "Number of live handles, reserved ones included",
			},
		),
		HeapBrk: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "valbridge_heap_brk_bytes",
				Help: "Offset of the first byte never handed out by the bridge heap",
			},
		),
		HeapFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "valbridge_heap_free_bytes",
				Help: "Bytes held in the bridge heap's free list",
			},
		),
		HeapFreeBlocks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "valbridge_heap_free_blocks",
				Help: "Length of the bridge heap's free list",
			},
		),
		HeapGrowths: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "valbridge_heap_growths_total",
				Help: "Number of times the bridge heap grew linear memory",
			},
		),
		MemoryPages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "valbridge_memory_pages",
				Help: "Size of the sandboxed module's linear memory in 64KiB pages",
			},
		),
	}
}

// ObserveCall records one entry point call. Its signature matches
// hostfuncs.CallObserver.
func (m *Metrics) ObserveCall(function string, elapsed time.Duration, err error) {
	m.EntryCalls.WithLabelValues(function, Outcome(err)).Inc()
	m.EntryDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// ObserveRegistry records a registry snapshot.
func (m *Metrics) ObserveRegistry(s entities.RegistryStats) {
	m.LiveHandles.Set(float64(s.Live))
}

// ObserveHeap records a heap snapshot.
func (m *Metrics) ObserveHeap(s entities.HeapStats) {
	m.HeapBrk.Set(float64(s.Brk))
	m.HeapFreeBytes.Set(float64(s.FreeBytes))
	m.HeapFreeBlocks.Set(float64(s.FreeBlocks))
	m.MemoryPages.Set(float64(s.MemorySize / abi.PageSize))
}

// HeapGrew records a growth performed by the bridge heap. Its signature
// matches abi.GrowHook.
func (m *Metrics) HeapGrew(_, newPages uint32) {
	m.HeapGrowths.Inc()
	m.MemoryPages.Set(float64(newPages))
}

// MemoryGrew records a growth the module performed on its own.
func (m *Metrics) MemoryGrew(pages uint32) {
	m.MemoryPages.Set(float64(pages))
}

// Outcome classifies an entry point result for the outcome label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.IsFatal(err) {
		return OutcomeFatal
	}
	var thrown *errors.ThrownError
	if stdErrors.As(err, &thrown) {
		return OutcomeThrown
	}
	return OutcomeError
}
