package txnset

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a Set's counters to prometheus.Collector, for callers
// that want metrics without Set itself depending on a registry. Grounded
// on hupe1980-vecgo's examples/observability package, which wires
// prometheus/client_golang around a generic store the same opt-in way:
// the store never imports prometheus itself, only the collector does.
type Collector[E any, K any] struct {
	set *Set[E, K]

	upserts   *prometheus.Desc
	commits   *prometheus.Desc
	conflicts *prometheus.Desc
	samples   *prometheus.Desc
	count     *prometheus.Desc
}

// NewCollector wraps set for prometheus registration.
func NewCollector[E any, K any](set *Set[E, K]) *Collector[E, K] {
	constLabels := prometheus.Labels{"set": set.name}
	return &Collector[E, K]{
		set:       set,
		upserts:   prometheus.NewDesc("txnset_upserts_total", "Total non-transactional upserts (Upsert and UpsertAll elements).", nil, constLabels),
		commits:   prometheus.NewDesc("txnset_commits_total", "Total committed transactions.", nil, constLabels),
		conflicts: prometheus.NewDesc("txnset_conflicts_total", "Total stage() consistency violations.", nil, constLabels),
		samples:   prometheus.NewDesc("txnset_samples_total", "Total SampleRange/SampleReservoir calls.", nil, constLabels),
		count:     prometheus.NewDesc("txnset_entries", "Current count of live entries.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector[E, K]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.upserts
	ch <- c.commits
	ch <- c.conflicts
	ch <- c.samples
	ch <- c.count
}

// Collect implements prometheus.Collector.
func (c *Collector[E, K]) Collect(ch chan<- prometheus.Metric) {
	stats := c.set.Stats()
	ch <- prometheus.MustNewConstMetric(c.upserts, prometheus.CounterValue, float64(stats["upserts"].(int64)))
	ch <- prometheus.MustNewConstMetric(c.commits, prometheus.CounterValue, float64(stats["commits"].(int64)))
	ch <- prometheus.MustNewConstMetric(c.conflicts, prometheus.CounterValue, float64(stats["conflicts"].(int64)))
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.CounterValue, float64(stats["samples"].(int64)))
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(stats["count"].(int)))
}
