package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReviewDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contract_review_job_duration_seconds",
			Help:    "Review job duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ReviewJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_jobs_total",
			Help: "Total review jobs by outcome",
		},
		[]string{"status"},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_documents_processed_total",
			Help: "Documents processed by classified type",
		},
		[]string{"document_type"},
	)

	DocumentFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_document_failures_total",
			Help: "Per-document pipeline failures by stage",
		},
		[]string{"stage"},
	)

	ChunksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contract_review_chunks_created_total",
			Help: "Total chunks produced by the chunking engine",
		},
	)

	EmbeddingBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_embedding_batches_total",
			Help: "Embedding batches by outcome",
		},
		[]string{"status"},
	)

	PointsUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contract_review_points_upserted_total",
			Help: "Vector points stored",
		},
	)

	UpsertBatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contract_review_upsert_batch_failures_total",
			Help: "Vector upsert batches that exhausted retries",
		},
	)

	ClauseAnalyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_clause_analyses_total",
			Help: "Clause invocation analyses by outcome",
		},
		[]string{"outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_review_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(ReviewDuration)
	prometheus.MustRegister(ReviewJobs)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(DocumentFailures)
	prometheus.MustRegister(ChunksCreated)
	prometheus.MustRegister(EmbeddingBatches)
	prometheus.MustRegister(PointsUpserted)
	prometheus.MustRegister(UpsertBatchFailures)
	prometheus.MustRegister(ClauseAnalyses)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
