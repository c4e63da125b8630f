package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the counters the asset pipeline reports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	rollbacks       prometheus.Counter
	deletedSources  prometheus.Counter
	orphanedBlobs   prometheus.Counter
	generatedAssets *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapforge_provider_calls_total",
			Help: "Provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapforge_source_rollbacks_total",
			Help: "Source assets rolled back after a failed generation.",
		}),
		deletedSources: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapforge_deleted_sources_total",
			Help: "Unreferenced source assets removed by lineage cleanup.",
		}),
		orphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapforge_orphaned_blobs_total",
			Help: "Blob deletes that failed and left an object without a row.",
		}),
		generatedAssets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapforge_generated_assets_total",
			Help: "Generated assets persisted, by model.",
		}, []string{"model"}),
	}
	reg.MustRegister(m.providerCalls, m.rollbacks, m.deletedSources, m.orphanedBlobs, m.generatedAssets)
	return m
}

func (m *Metrics) ProviderCall(provider string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Rollback(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rollbacks.Add(float64(n))
}

func (m *Metrics) DeletedSources(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deletedSources.Add(float64(n))
}

func (m *Metrics) OrphanedBlob() {
	if m == nil {
		return
	}
	m.orphanedBlobs.Inc()
}

func (m *Metrics) Generated(model string) {
	if m == nil {
		return
	}
	m.generatedAssets.WithLabelValues(model).Inc()
}
