package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnswerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bank_assistant_answer_duration_seconds",
			Help:    "End-to-end answer pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"intent"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_assistant_answers_total",
			Help: "Total answers produced, by completion outcome",
		},
		[]string{"outcome"},
	)

	CompletionAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bank_assistant_completion_attempts",
			Help:    "Completion attempts needed per answer",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	CompletionBackoffSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bank_assistant_completion_backoff_seconds_total",
			Help: "Total time spent sleeping between completion attempts",
		},
	)

	RetrievalResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_assistant_retrieval_total",
			Help: "Public knowledge lookups, by result",
		},
		[]string{"language", "result"},
	)

	CalculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_assistant_calculations_total",
			Help: "Spend calculations, by window and outcome",
		},
		[]string{"window", "outcome"},
	)

	PersonalContextTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_assistant_personal_context_total",
			Help: "Personal context assemblies, by result",
		},
		[]string{"result"},
	)

	ChunksIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_assistant_chunks_indexed_total",
			Help: "Knowledge chunks written to the similarity index",
		},
		[]string{"language"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bank_assistant_rate_limited_total",
			Help: "Requests rejected by the per-customer rate limiter",
		},
	)

	SessionWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_assistant_session_writes_total",
			Help: "Session transcript writes, by status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AnswerDuration)
		prometheus.MustRegister(AnswersTotal)
		prometheus.MustRegister(CompletionAttempts)
		prometheus.MustRegister(CompletionBackoffSeconds)
		prometheus.MustRegister(RetrievalResults)
		prometheus.MustRegister(CalculationsTotal)
		prometheus.MustRegister(PersonalContextTotal)
		prometheus.MustRegister(ChunksIndexed)
		prometheus.MustRegister(RateLimited)
		prometheus.MustRegister(SessionWrites)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
