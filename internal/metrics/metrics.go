package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emirozbir/micro-triage/internal/models"
)

// Recorder exposes pipeline metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	batchesTotal  prometheus.Counter
	alertsTotal   *prometheus.CounterVec
	ticketsTotal  prometheus.Counter
	scores        prometheus.Histogram
	lastGroups    prometheus.Gauge
	notifications *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,

		batchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "triage_batches_total",
			Help: "Total number of processed alert batches",
		}),
		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_alerts_total",
			Help: "Total number of processed alerts by rule action",
		}, []string{"action"}),
		ticketsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "triage_tickets_total",
			Help: "Total number of alerts that qualified for a ticket",
		}),
		scores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_alert_score",
			Help:    "Actionability score distribution",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		lastGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "triage_last_batch_correlation_groups",
			Help: "Number of correlation groups in the most recent batch",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_notification_results_total",
			Help: "Notification deliveries by outcome",
		}, []string{"outcome"}),
	}
}

func (r *Recorder) ObserveBatch(result *models.BatchResult) {
	r.batchesTotal.Inc()
	r.alertsTotal.WithLabelValues(string(models.ActionEscalate)).Add(float64(len(result.Actionable)))
	r.alertsTotal.WithLabelValues(string(models.ActionSuppress)).Add(float64(len(result.Suppressed)))
	r.alertsTotal.WithLabelValues(string(models.ActionDeduplicate)).Add(float64(len(result.Deduplicated)))
	r.ticketsTotal.Add(float64(result.Summary.TicketsToCreate))
	r.lastGroups.Set(float64(len(result.CorrelatedGroups)))

	for _, pa := range result.All() {
		r.scores.Observe(float64(pa.Score))
	}
}

// ObserveNotifications counts delivery outcomes of one dispatch.
func (r *Recorder) ObserveNotifications(sent, dryRun, failed int) {
	r.notifications.WithLabelValues("sent").Add(float64(sent))
	r.notifications.WithLabelValues("dry_run").Add(float64(dryRun))
	r.notifications.WithLabelValues("failed").Add(float64(failed))
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
