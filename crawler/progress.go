package crawler

import (
	"uniswap-v2-crawler/logger"
	"uniswap-v2-crawler/metrics"
)

// ProgressReporter is told about every ingested page of a data pass.
type ProgressReporter interface {
	Report(collection string, processed, total int, fraction float64, records int)
	Done(collection string)
}

// logProgress writes a log line per page and publishes the state on the
// metrics collector.
type logProgress struct {
	metrics *metrics.Collector
}

func (p *logProgress) Report(collection string, processed, total int, fraction float64, records int) {
	logger.Info("%s: %.1f%% (%d/%d)", collection, 100*fraction, processed, total)
	p.metrics.ReportProgress(collection, processed, total, fraction, records)
}

func (p *logProgress) Done(collection string) {
	p.metrics.MarkDone(collection)
}
