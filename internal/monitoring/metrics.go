package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/childcare-cli/internal/model"
)

// Item outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
	OutcomeTooLong = "too_long"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	ItemsTotal    *prometheus.CounterVec
	ItemDuration  *prometheus.HistogramVec
	ModelTokens   *prometheus.CounterVec
	ModelCostUSD  *prometheus.CounterVec
	Backlog       *prometheus.GaugeVec
	PagesIngested prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "childcare_items_total",
			Help: "Items processed per pass, by outcome.",
		}, []string{"pass", "outcome"}),
		ItemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "childcare_item_duration_seconds",
			Help:    "Wall time per processed item, retries included.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900},
		}, []string{"pass"}),
		ModelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "childcare_model_tokens_total",
			Help: "Model tokens consumed, by pass and direction.",
		}, []string{"pass", "direction"}),
		ModelCostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "childcare_model_cost_usd_total",
			Help: "Estimated model spend in USD.",
		}, []string{"pass"}),
		Backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "childcare_backlog",
			Help: "Items awaiting each pass at the last collection.",
		}, []string{"pass"}),
		PagesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "childcare_pages_ingested_total",
			Help: "Crawled pages appended to the store.",
		}),
	}
	reg.MustRegister(m.ItemsTotal, m.ItemDuration, m.ModelTokens, m.ModelCostUSD, m.Backlog, m.PagesIngested)
	return m
}

// ObserveItem records one processed item. Nil receivers are no-ops.
func (m *Metrics) ObserveItem(pass model.Pass, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(string(pass), outcome).Inc()
	m.ItemDuration.WithLabelValues(string(pass)).Observe(elapsed.Seconds())
}

// ObserveUsage records token consumption and cost of one model call.
func (m *Metrics) ObserveUsage(pass model.Pass, input, output int64, usd float64) {
	if m == nil {
		return
	}
	m.ModelTokens.WithLabelValues(string(pass), "input").Add(float64(input))
	m.ModelTokens.WithLabelValues(string(pass), "output").Add(float64(output))
	m.ModelCostUSD.WithLabelValues(string(pass)).Add(usd)
}

// ObserveIngest records appended pages.
func (m *Metrics) ObserveIngest(pages int64) {
	if m == nil {
		return
	}
	m.PagesIngested.Add(float64(pages))
}

// SetBacklog publishes a backlog snapshot.
func (m *Metrics) SetBacklog(snap *Snapshot) {
	if m == nil || snap == nil {
		return
	}
	m.Backlog.WithLabelValues(string(model.PassContact)).Set(float64(snap.PendingContact))
	m.Backlog.WithLabelValues(string(model.PassChildcare)).Set(float64(snap.PendingChildcare))
	m.Backlog.WithLabelValues(string(model.PassCombine)).Set(float64(snap.PendingCombination))
}
