// Package metrics exposes the kernel core's always-on counters
// (internal/kstats) as Prometheus gauges, using
// github.com/prometheus/client_golang the way a long-running service in
// the teacher's ecosystem would instrument itself; biscuit's own
// stats.go (src/stats/stats.go) instead prints a one-shot text dump at
// shutdown, since a real kernel has no HTTP server to scrape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kcore/internal/kstats"
)

// Registry wraps a dedicated prometheus.Registry (rather than the global
// default one) so repeated test construction doesn't collide on
// double-registration.
type Registry struct {
	reg     *prometheus.Registry
	gauges  map[string]prometheus.Gauge
	source  *kstats.Kernel
}

// NewRegistry builds a Registry that reports counters from source,
// pre-creating one gauge per field in kstats.Kernel's Snapshot.
func NewRegistry(source *kstats.Kernel) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{reg: reg, gauges: make(map[string]prometheus.Gauge), source: source}
	for name := range source.Snapshot() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kcore",
			Name:      name,
			Help:      "kernel core counter: " + name,
		})
		reg.MustRegister(g)
		r.gauges[name] = g
	}
	return r
}

// Collect copies the current kstats snapshot into the Prometheus gauges.
// Call this on a scrape-triggered or periodic basis; client_golang gauges
// have no push model of their own.
func (r *Registry) Collect() {
	for name, v := range r.source.Snapshot() {
		if g, ok := r.gauges[name]; ok {
			g.Set(float64(v))
		}
	}
}

// Handler returns an http.Handler serving the registry in the standard
// Prometheus exposition format, refreshing the gauges on every scrape so
// a slow-polling scraper still sees live values.
func (r *Registry) Handler() http.Handler {
	inner := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.Collect()
		inner.ServeHTTP(w, req)
	})
}
