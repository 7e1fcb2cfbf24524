// Package metrics exposes Prometheus counters for execution and scheduler
// activity. Registration is idempotent so embedding applications can call
// Register alongside the server without double-register panics.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	executionStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "procorg_execution_starts_total",
		Help: "Number of script executions started.",
	}, []string{"name"})

	executionFinals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "procorg_execution_finals_total",
		Help: "Number of script executions reaching a final status.",
	}, []string{"name", "status"})

	executionStops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "procorg_execution_stops_total",
		Help: "Number of stop requests that terminated an execution.",
	}, []string{"name"})

	schedulerTriggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "procorg_scheduler_triggers_total",
		Help: "Number of cron-driven executions triggered.",
	}, []string{"name"})

	schedulerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "procorg_scheduler_errors_total",
		Help: "Number of scheduler trigger attempts that failed.",
	}, []string{"name"})

	runningExecutions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "procorg_running_executions",
		Help: "Executions currently running under this instance.",
	})
)

var registered atomic.Bool

// Register installs the collectors on reg (the default registerer when nil).
// Safe to call more than once.
func Register(reg prometheus.Registerer) error {
	if !registered.CompareAndSwap(false, true) {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{
		executionStarts, executionFinals, executionStops,
		schedulerTriggers, schedulerErrors, runningExecutions,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			registered.Store(false)
			return err
		}
	}
	return nil
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string) {
	executionStarts.WithLabelValues(name).Inc()
	runningExecutions.Inc()
}

func ObserveFinal(name, status string) {
	executionFinals.WithLabelValues(name, status).Inc()
	runningExecutions.Dec()
}

func IncStop(name string) {
	executionStops.WithLabelValues(name).Inc()
}

func IncSchedulerTrigger(name string) {
	schedulerTriggers.WithLabelValues(name).Inc()
}

func IncSchedulerError(name string) {
	schedulerErrors.WithLabelValues(name).Inc()
}
