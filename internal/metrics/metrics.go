package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type kbMetrics struct {
	ingestRows   *prometheus.CounterVec
	piiEntities  *prometheus.CounterVec
	queries      *prometheus.CounterVec
	fallbacks    prometheus.Counter
	externalCall *prometheus.HistogramVec
	indexSize    prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *kbMetrics
)

func global() *kbMetrics {
	metricsOnce.Do(func() {
		metricsInst = newKBMetrics()
	})
	return metricsInst
}

func newKBMetrics() *kbMetrics {
	return &kbMetrics{
		ingestRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incidentrag",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Ingested rows, labeled by result (indexed, rejected, failed)",
		}, []string{"result"}),
		piiEntities: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incidentrag",
			Subsystem: "pii",
			Name:      "entities_total",
			Help:      "Redacted PII entities by entity type",
		}, []string{"type"}),
		queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incidentrag",
			Subsystem: "query",
			Name:      "total",
			Help:      "Classified questions by query type",
		}, []string{"type"}),
		fallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "incidentrag",
			Subsystem: "retrieval",
			Name:      "fallbacks_total",
			Help:      "Retrievals where metadata filters matched nothing and unfiltered results were used",
		}),
		externalCall: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "incidentrag",
			Subsystem: "external",
			Name:      "call_seconds",
			Help:      "Duration of collaborator calls by operation and outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		indexSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "incidentrag",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Chunks stored in the vector index after the latest ingest",
		}),
	}
}

func RecordIngestRow(result string) {
	global().ingestRows.WithLabelValues(result).Inc()
}

func RecordPIIEntities(counts map[string]int) {
	m := global()
	for typ, n := range counts {
		m.piiEntities.WithLabelValues(typ).Add(float64(n))
	}
}

func RecordQuery(queryType string) {
	global().queries.WithLabelValues(queryType).Inc()
}

func RecordFallback() {
	global().fallbacks.Inc()
}

func SetIndexSize(n int) {
	global().indexSize.Set(float64(n))
}

// ObserveExternal times a collaborator call. Call the returned func with
// the call's error.
func ObserveExternal(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		global().externalCall.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	global()
	return promhttp.Handler()
}
