package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	FallbackAnswers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_fallback_answers_total",
			Help: "Answers assembled from templates instead of generation",
		},
		[]string{"reason"},
	)

	RetrievedPassages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_retrieved_passages",
			Help:    "Number of passages used per integrated answer",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	FeedbackRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_feedback_rating",
			Help:    "User feedback ratings",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	IngestionJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_ingestion_jobs_total",
			Help: "Ingestion jobs by outcome",
		},
		[]string{"status"},
	)

	ChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_chunks_ingested_total",
			Help: "Transcript chunks embedded and stored",
		},
	)

	IngestionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutor_ingestion_queue_depth",
			Help: "Jobs waiting in the ingestion queue",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			ConfidenceScore,
			FallbackAnswers,
			RetrievedPassages,
			CacheHits,
			CacheMisses,
			FeedbackRating,
			IngestionJobs,
			ChunksIngested,
			IngestionQueueDepth,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
