package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uniswap_crawler"

// Progress is the state of the last reported data pass of a collection.
type Progress struct {
	Collection string    `json:"collection"`
	Processed  int       `json:"processed"`
	Total      int       `json:"total"`
	Fraction   float64   `json:"fraction"`
	Done       bool      `json:"done"`
	Updated    time.Time `json:"updated"`
}

type Collector struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	queryRetries     *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	rowsCreated      *prometheus.CounterVec
	passTotal        *prometheus.GaugeVec
	passProgress     *prometheus.GaugeVec

	mu       sync.RWMutex
	progress map[string]Progress
	started  time.Time
}

// New creates the crawler metrics on a private registry, so several
// crawlers in one process (tests) do not collide.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_queries_total",
			Help:      "Remote queries executed, by collection, shape and outcome.",
		}, []string{"collection", "shape", "outcome"}),
		queryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_query_retries_total",
			Help:      "Retries of failed remote queries.",
		}, []string{"collection"}),
		recordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Top level records passed through the ingestion writer.",
		}, []string{"collection"}),
		rowsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_created_total",
			Help:      "Rows inserted into the store, by entity.",
		}, []string{"entity"}),
		passTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_total_records",
			Help:      "Records counted by the last counting pass.",
		}, []string{"collection"}),
		passProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_progress_ratio",
			Help:      "Processed records divided by the counted total.",
		}, []string{"collection"}),
		progress: make(map[string]Progress),
		started:  time.Now(),
	}

	c.registry.MustRegister(
		c.queries,
		c.queryRetries,
		c.recordsProcessed,
		c.rowsCreated,
		c.passTotal,
		c.passProgress,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveQuery(collection, shape string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.queries.WithLabelValues(collection, shape, outcome).Inc()
}

func (c *Collector) ObserveRetry(collection string) {
	c.queryRetries.WithLabelValues(collection).Inc()
}

func (c *Collector) ObserveRowsCreated(entity string, n int) {
	if n > 0 {
		c.rowsCreated.WithLabelValues(entity).Add(float64(n))
	}
}

func (c *Collector) SetTotal(collection string, total int) {
	c.passTotal.WithLabelValues(collection).Set(float64(total))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress[collection] = Progress{Collection: collection, Total: total, Updated: time.Now()}
}

func (c *Collector) ReportProgress(collection string, processed, total int, fraction float64, records int) {
	c.recordsProcessed.WithLabelValues(collection).Add(float64(records))
	c.passProgress.WithLabelValues(collection).Set(fraction)

	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.progress[collection]
	p.Collection = collection
	p.Processed = processed
	p.Total = total
	p.Fraction = fraction
	p.Updated = time.Now()
	c.progress[collection] = p
}

func (c *Collector) MarkDone(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.progress[collection]
	p.Collection = collection
	p.Done = true
	p.Updated = time.Now()
	c.progress[collection] = p
}

func (c *Collector) Progress() []Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Progress, 0, len(c.progress))
	for _, p := range c.progress {
		out = append(out, p)
	}
	return out
}
