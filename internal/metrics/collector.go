package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeAnswered      = "answered"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeQuotaError    = "quota_error"
	OutcomeNoPhoto       = "no_photo"
	OutcomeDownloadError = "download_error"
	OutcomeOCRError      = "ocr_error"
	OutcomeNoText        = "no_text"
	OutcomeModelError    = "model_error"
)

// Collector holds the bot's Prometheus metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry prometheus.Gatherer

	updatesTotal    *prometheus.CounterVec
	questionsTotal  *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	messagesSent    *prometheus.CounterVec
	auditWriteFails prometheus.Counter
	incomplete      *prometheus.CounterVec
}

func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.NewRegistry())
}

// NewCollectorWithRegistry registers every metric on registry.
func NewCollectorWithRegistry(registry *prometheus.Registry) *Collector {
	factory := promauto.With(registry)
	return &Collector{
		registry: registry,

		updatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alsolver_updates_total",
				Help: "Webhook updates received by kind",
			},
			[]string{"kind"},
		),

		questionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alsolver_questions_total",
				Help: "Questions handled by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alsolver_stage_duration_seconds",
				Help:    "Time spent in external calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage", "status"},
		),

		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alsolver_messages_sent_total",
				Help: "Outbound Telegram messages by status",
			},
			[]string{"status"},
		),

		auditWriteFails: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "alsolver_audit_write_failures_total",
				Help: "Request log writes that failed",
			},
		),

		incomplete: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alsolver_incomplete_answers_total",
				Help: "Delivered answers missing one or more section headings",
			},
			[]string{"source"},
		),
	}
}

func (m *Collector) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(kind).Inc()
}

func (m *Collector) RecordQuestion(source, outcome string) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveStage records the duration of an ocr, llm, vision or download call.
func (m *Collector) ObserveStage(stage string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status(err)).Observe(d.Seconds())
}

func (m *Collector) RecordMessageSent(err error) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(status(err)).Inc()
}

func (m *Collector) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditWriteFails.Inc()
}

// RecordIncompleteAnswer counts a delivered answer that lacks a heading.
func (m *Collector) RecordIncompleteAnswer(source string) {
	if m == nil {
		return
	}
	m.incomplete.WithLabelValues(source).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (m *Collector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
