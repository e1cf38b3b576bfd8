package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	evaluationsTotal    *prometheus.CounterVec
	evaluationDuration  *prometheus.HistogramVec
	rubricPoints        *prometheus.HistogramVec
	evaluationRetries   prometheus.Counter
	promptsAnswered     prometheus.Counter
	promptStreamClients prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the autograder.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograder_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autograder_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograder_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograder_evaluations_total",
			Help: "Evaluations by language and final status.",
		}, []string{"language", "status"})

		evaluationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autograder_evaluation_duration_seconds",
			Help:    "Wall time of a full rubric evaluation.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"language"})

		rubricPoints = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autograder_rubric_points",
			Help:    "Rubric points earned per completed evaluation.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7},
		}, []string{"language"})

		evaluationRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autograder_evaluation_retries_total",
			Help: "Evaluations that fell back to grader input after extraction.",
		})

		promptsAnswered = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autograder_prompts_answered_total",
			Help: "Grader prompts answered through the API.",
		})

		promptStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autograder_prompt_stream_clients",
			Help: "Connected prompt websocket clients.",
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			evaluationsTotal, evaluationDuration, rubricPoints, evaluationRetries,
			promptsAnswered, promptStreamClients,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Evaluations exposes the evaluation outcome counter.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// EvaluationDuration exposes the evaluation wall time histogram.
func EvaluationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationDuration
}

// RubricPoints exposes the rubric score histogram.
func RubricPoints() *prometheus.HistogramVec {
	RegisterMetrics()
	return rubricPoints
}

// EvaluationRetries exposes the retry counter.
func EvaluationRetries() prometheus.Counter {
	RegisterMetrics()
	return evaluationRetries
}

// PromptsAnswered exposes the answered prompt counter.
func PromptsAnswered() prometheus.Counter {
	RegisterMetrics()
	return promptsAnswered
}

// PromptStreamClients exposes the websocket client gauge.
func PromptStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return promptStreamClients
}

// MetricsHandler serves the collectors above in OpenMetrics format.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
