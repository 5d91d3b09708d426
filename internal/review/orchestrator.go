package review

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/catalog"
	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/internal/storage/models"
	"github.com/seanmckee-pacmet/contract-review-2/internal/vector"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/utils"
)

// JobStore persists completed review jobs. Persistence is best-effort; a
// storage failure is logged and never fails the job that produced the result.
type JobStore interface {
	InsertJob(job *models.ReviewJob) error
}

// Orchestrator runs complete review jobs: index the company's documents,
// evaluate every notable clause against them, and aggregate the outcome.
type Orchestrator struct {
	loader   *catalog.Loader
	pipeline *Pipeline
	clauses  *ClauseAnalyzer
	store    vector.Store
	history  JobStore
}

func NewOrchestrator(loader *catalog.Loader, pipeline *Pipeline, clauses *ClauseAnalyzer, store vector.Store, history JobStore) *Orchestrator {
	return &Orchestrator{
		loader:   loader,
		pipeline: pipeline,
		clauses:  clauses,
		store:    store,
		history:  history,
	}
}

var collectionNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// CollectionName maps a company name to its per-company collection.
func CollectionName(company string) string {
	name := collectionNameSanitizer.ReplaceAllString(strings.TrimSpace(company), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "c_" + name
	}
	return name + "_documents"
}

// ReviewDocuments runs one review job over the given document files. Every
// per-document and per-clause failure is isolated and reported in the result;
// the job itself fails only when nothing downstream could be trusted: an
// unreadable catalog, an unreachable collection, or a purchase order whose
// invocation scope could not be extracted.
func (o *Orchestrator) ReviewDocuments(ctx context.Context, filePaths []string, companyName string) (*ReviewResult, error) {
	start := time.Now()
	defer func() {
		metrics.ReviewDuration.Observe(time.Since(start).Seconds())
	}()

	cat, err := o.loader.Get()
	if err != nil {
		metrics.ReviewJobs.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to load notable clause catalog: %w", err)
	}

	collection := CollectionName(companyName)
	if err := o.store.EnsureCollection(ctx, collection); err != nil {
		metrics.ReviewJobs.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to prepare collection %s: %w", collection, err)
	}

	logger.Info("Review job started",
		zap.String("company", companyName),
		zap.String("collection", collection),
		zap.Int("documents", len(filePaths)),
		zap.Int("clauses", cat.Len()),
	)

	docs, failures := o.pipeline.Run(ctx, filePaths)
	if err := ctx.Err(); err != nil {
		metrics.ReviewJobs.WithLabelValues("failed").Inc()
		return nil, err
	}

	// A purchase order that could not be analyzed poisons every clause
	// decision, so it aborts the job instead of degrading it.
	for _, f := range failures {
		if f.Stage == StagePOAnalysis {
			metrics.ReviewJobs.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("cannot determine invocation scope: %s", f.Error)
		}
	}

	documentTypes := make(map[string]DocumentType, len(docs))
	for _, d := range docs {
		documentTypes[d.Path] = d.Type
	}
	po := mergePOAnalyses(docs)

	points := buildPoints(docs)
	if len(points) > 0 {
		stored, failed, err := o.store.UpsertBatch(ctx, collection, points)
		if err != nil {
			metrics.ReviewJobs.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to index documents: %w", err)
		}
		if failed > 0 {
			failures = append(failures, Failure{
				Stage:   StageUpsert,
				Subject: collection,
				Error:   fmt.Sprintf("%d of %d points not stored", failed, stored+failed),
			})
		}
	}

	analyses, clauseFailures := o.clauses.AnalyzeAll(ctx, collection, po, cat.Entries())
	failures = append(failures, clauseFailures...)
	if err := ctx.Err(); err != nil {
		metrics.ReviewJobs.WithLabelValues("failed").Inc()
		return nil, err
	}

	invoked := make([]ClauseAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if a.Invoked == "Yes" {
			invoked = append(invoked, a)
		}
	}

	result := &ReviewResult{
		CompanyName:    companyName,
		DocumentTypes:  documentTypes,
		POAnalysis:     po,
		ClauseAnalysis: invoked,
		Failures:       failures,
	}

	o.persistJob(start, result, len(filePaths))
	metrics.ReviewJobs.WithLabelValues("completed").Inc()

	logger.Info("Review job completed",
		zap.String("company", companyName),
		zap.Int("documents_processed", len(docs)),
		zap.Int("clauses_invoked", len(invoked)),
		zap.Int("failures", len(failures)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// ClearCompanyCollection deletes the company's indexed documents. Best-effort
// like the underlying drop; a missing collection is not an error.
func (o *Orchestrator) ClearCompanyCollection(ctx context.Context, companyName string) {
	o.store.DropCollection(ctx, CollectionName(companyName))
}

// mergePOAnalyses folds all purchase order scopes in the job into one.
// Documents arrive sorted by path, so the merge is deterministic: all_invoked
// is the OR across orders, identifier and requirement lists are ordered
// case-insensitive unions.
func mergePOAnalyses(docs []*DocumentResult) *POAnalysis {
	var merged *POAnalysis
	for _, d := range docs {
		if d.PO == nil {
			continue
		}
		if merged == nil {
			merged = &POAnalysis{AllInvoked: d.PO.AllInvoked}
		} else {
			merged.AllInvoked = merged.AllInvoked || d.PO.AllInvoked
		}
		merged.ClauseIdentifiers = appendUniqueFold(merged.ClauseIdentifiers, d.PO.ClauseIdentifiers)
		merged.Requirements = appendUniqueFold(merged.Requirements, d.PO.Requirements)
	}
	return merged
}

func appendUniqueFold(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, existing := range dst {
			if strings.EqualFold(existing, s) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

// buildPoints zips each document's chunks with its embeddings, truncating to
// the shorter side when embedding batches were dropped. Point ids are stable
// hashes of path and chunk index so re-running a job overwrites rather than
// duplicates.
func buildPoints(docs []*DocumentResult) []vector.Point {
	var points []vector.Point
	for _, d := range docs {
		n := len(d.Chunks)
		if len(d.Embeddings) < n {
			n = len(d.Embeddings)
		}
		for i := 0; i < n; i++ {
			c := d.Chunks[i]
			points = append(points, vector.Point{
				ID:           utils.HashInt64(c.SourcePath + "#" + strconv.Itoa(c.Index)),
				Vector:       d.Embeddings[i],
				Content:      c.Content,
				DocumentType: string(c.DocumentType),
				SourcePath:   c.SourcePath,
				HeaderPath:   c.HeaderPath,
				ChunkIndex:   c.Index,
			})
		}
	}
	return points
}

func (o *Orchestrator) persistJob(start time.Time, result *ReviewResult, documentCount int) {
	if o.history == nil {
		return
	}

	docTypes := make(map[string]string, len(result.DocumentTypes))
	for path, t := range result.DocumentTypes {
		docTypes[path] = string(t)
	}

	invoked := make([]string, 0, len(result.ClauseAnalysis))
	for _, a := range result.ClauseAnalysis {
		invoked = append(invoked, a.Clause)
	}

	var poJSON json.RawMessage
	if result.POAnalysis != nil {
		poJSON, _ = json.Marshal(result.POAnalysis)
	}
	failuresJSON, _ := json.Marshal(result.Failures)

	job := &models.ReviewJob{
		ID:             uuid.New().String(),
		CompanyName:    result.CompanyName,
		StartedAt:      start,
		FinishedAt:     time.Now(),
		DocumentCount:  documentCount,
		DocumentTypes:  docTypes,
		POAnalysis:     poJSON,
		InvokedClauses: invoked,
		Failures:       failuresJSON,
	}
	if err := o.history.InsertJob(job); err != nil {
		logger.Warn("Failed to persist review job", zap.String("job_id", job.ID), zap.Error(err))
	}
}
