package metrics

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Requests served by the rpc server, by method.
	rpcRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callsim",
		Subsystem: "rpc",
		Name:      "requests",
	}, []string{"method"})

	// Failed requests, by method and json-rpc error code.
	rpcFailedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callsim",
		Subsystem: "rpc",
		Name:      "failed_requests",
	}, []string{"method", "error_code"})

	// Request latencies, by method.
	rpcLatencies = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "callsim",
		Subsystem: "rpc",
		Name:      "requests_latency",
	}, []string{"method"})

	// Executions run by the executor, by kind.
	executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callsim",
		Subsystem: "executor",
		Name:      "executions",
	}, []string{"kind"})

	// Blocks imported.
	blocksImported = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "callsim",
		Subsystem: "chain",
		Name:      "blocks",
	})

	// Head height.
	headHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callsim",
		Subsystem: "chain",
		Name:      "head_height",
	})

	// Persisted state height.
	persistedHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callsim",
		Subsystem: "state",
		Name:      "persisted_height",
	})

	// Layers retained in memory.
	layersRetained = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callsim",
		Subsystem: "state",
		Name:      "layers_retained",
	})
)

func init() {
	prometheus.MustRegister(
		rpcRequests,
		rpcFailedRequests,
		rpcLatencies,
		executions,
		blocksImported,
		headHeight,
		persistedHeight,
		layersRetained,
	)
}

// RPCRequest records a served request.
func RPCRequest(method string, took time.Duration) {
	rpcRequests.WithLabelValues(method).Inc()
	rpcLatencies.WithLabelValues(method).Observe(took.Seconds())
}

// RPCFailure records a failed request.
func RPCFailure(method string, code string) {
	rpcFailedRequests.WithLabelValues(method, code).Inc()
}

// Execution records an execution of the given kind.
func Execution(kind string) {
	executions.WithLabelValues(kind).Inc()
}

// BlockImported records an imported block at the given height.
func BlockImported(height uint64) {
	blocksImported.Inc()
	headHeight.Set(float64(height))
}

// StateRetained records the state retention window.
func StateRetained(persisted uint64, layers int) {
	persistedHeight.Set(float64(persisted))
	layersRetained.Set(float64(layers))
}
