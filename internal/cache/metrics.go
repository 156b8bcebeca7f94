package cache

import "github.com/prometheus/client_golang/prometheus"

// Collector 在抓取时读取 Cacher.Stats()，不在热路径上维护额外指标。
type Collector struct {
	cacher *Cacher

	requests      *prometheus.Desc
	hits          *prometheus.Desc
	producerCalls *prometheus.Desc
	bypassed      *prometheus.Desc
	failures      *prometheus.Desc
	evictions     *prometheus.Desc
	sizeBytes     *prometheus.Desc
	capacityBytes *prometheus.Desc
	items         *prometheus.Desc
	pending       *prometheus.Desc
}

// NewCollector 为 cacher 构造 prometheus.Collector。
func NewCollector(cacher *Cacher) *Collector {
	tier := []string{"tier"}
	return &Collector{
		cacher:        cacher,
		requests:      prometheus.NewDesc("any_cache_requests_total", "Cache lookups started.", nil, nil),
		hits:          prometheus.NewDesc("any_cache_hits_total", "Lookups served from a cache tier.", tier, nil),
		producerCalls: prometheus.NewDesc("any_cache_producer_calls_total", "Producer invocations.", nil, nil),
		bypassed:      prometheus.NewDesc("any_cache_bypassed_total", "Lookups that skipped both tiers.", nil, nil),
		failures:      prometheus.NewDesc("any_cache_failures_total", "Lookups that returned an error.", nil, nil),
		evictions:     prometheus.NewDesc("any_cache_evictions_total", "Entries evicted per tier.", tier, nil),
		sizeBytes:     prometheus.NewDesc("any_cache_size_bytes", "Bytes resident per tier.", tier, nil),
		capacityBytes: prometheus.NewDesc("any_cache_capacity_bytes", "Byte budget per tier.", tier, nil),
		items:         prometheus.NewDesc("any_cache_items", "Entries resident per tier.", tier, nil),
		pending:       prometheus.NewDesc("any_cache_pending_operations", "Coalesced operations in flight.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.hits
	ch <- c.producerCalls
	ch <- c.bypassed
	ch <- c.failures
	ch <- c.evictions
	ch <- c.sizeBytes
	ch <- c.capacityBytes
	ch <- c.items
	ch <- c.pending
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.cacher.Stats()

	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(stats.Requests))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.MemoryHits), string(TierMemory))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.DiskHits), string(TierDisk))
	ch <- prometheus.MustNewConstMetric(c.producerCalls, prometheus.CounterValue, float64(stats.ProducerCalls))
	ch <- prometheus.MustNewConstMetric(c.bypassed, prometheus.CounterValue, float64(stats.Bypassed))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(stats.Failures))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(stats.Pending))

	for _, t := range []struct {
		tier  Tier
		stats TierStats
	}{
		{TierMemory, stats.Memory},
		{TierDisk, stats.Disk},
	} {
		label := string(t.tier)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(t.stats.Evictions), label)
		ch <- prometheus.MustNewConstMetric(c.sizeBytes, prometheus.GaugeValue, float64(t.stats.Size), label)
		ch <- prometheus.MustNewConstMetric(c.capacityBytes, prometheus.GaugeValue, float64(t.stats.Capacity), label)
		ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(t.stats.Items), label)
	}
}
