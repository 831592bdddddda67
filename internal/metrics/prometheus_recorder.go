package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "deltapkg"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	files      *prom.CounterVec
	fallbacks  *prom.CounterVec
	mismatches prom.Counter
	duration   *prom.HistogramVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg
// (a fresh registry when reg is nil).
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		files: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files handled, by operation and delta strategy",
		}, []string{"operation", "strategy"}),
		fallbacks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_fallbacks_total",
			Help:      "Delta strategy attempts that failed and fell back",
		}, []string{"strategy", "status"}),
		mismatches: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Reconstructed files that failed checksum verification",
		}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of create and apply operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(pr.files, pr.fallbacks, pr.mismatches, pr.duration)
	return pr
}

func (p *PrometheusRecorder) IncFiles(operation, strategy string) {
	if p == nil {
		return
	}
	p.files.WithLabelValues(operation, strategy).Inc()
}

func (p *PrometheusRecorder) IncFallback(strategy, status string) {
	if p == nil {
		return
	}
	p.fallbacks.WithLabelValues(strategy, status).Inc()
}

func (p *PrometheusRecorder) IncChecksumMismatch() {
	if p == nil {
		return
	}
	p.mismatches.Inc()
}

func (p *PrometheusRecorder) ObserveDuration(operation string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.duration.WithLabelValues(operation, res).Observe(d.Seconds())
}
