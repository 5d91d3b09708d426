package review

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/chunker"
	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/internal/parser"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

// DocumentResult is the per-document output of the pipeline: the classified
// type, the chunks, and the embeddings aligned to the leading chunks. When
// embedding batches were dropped len(Embeddings) < len(Chunks) and Dropped
// records the gap.
type DocumentResult struct {
	Path       string
	Type       DocumentType
	Chunks     []Chunk
	Embeddings [][]float32
	PO         *POAnalysis
	Dropped    int
}

// Pipeline runs parse, classify, chunk, and embed for each document, plus
// invocation-scope extraction for purchase orders. Documents are processed
// concurrently and fail independently; one bad file never takes down the job.
type Pipeline struct {
	parser     parser.Parser
	classifier *Classifier
	poAnalyzer *POAnalyzer
	embedder   Embedder
	chunkCfg   chunker.Config
	workers    int
}

func NewPipeline(p parser.Parser, classifier *Classifier, poAnalyzer *POAnalyzer, embedder Embedder, chunkCfg chunker.Config, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		parser:     p,
		classifier: classifier,
		poAnalyzer: poAnalyzer,
		embedder:   embedder,
		chunkCfg:   chunkCfg,
		workers:    workers,
	}
}

// Run processes all paths and returns the successful document results sorted
// by path, plus a Failure per document or stage that did not complete.
func (p *Pipeline) Run(ctx context.Context, paths []string) ([]*DocumentResult, []Failure) {
	results := make([]*DocumentResult, len(paths))
	failures := make([]Failure, 0)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)

	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, fail := p.processDocument(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if fail != nil {
				failures = append(failures, *fail)
			}
			results[i] = result
		}(i, path)
	}
	wg.Wait()

	ok := make([]*DocumentResult, 0, len(paths))
	for _, r := range results {
		if r != nil {
			ok = append(ok, r)
		}
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].Path < ok[j].Path })
	return ok, failures
}

// processDocument returns a nil result when the document must be excluded
// entirely. A partial embedding drop still yields a result; the Failure
// records what was lost.
func (p *Pipeline) processDocument(ctx context.Context, path string) (*DocumentResult, *Failure) {
	text, err := p.parser.ParseDocument(ctx, path)
	if err != nil {
		logger.Error("Failed to parse document", zap.String("path", path), zap.Error(err))
		metrics.DocumentFailures.WithLabelValues(StageParse).Inc()
		return nil, &Failure{Stage: StageParse, Subject: path, Error: err.Error()}
	}

	docType := p.classifier.Classify(ctx, path, text)

	rawChunks := chunker.SplitMarkdown(text, p.chunkCfg)
	metrics.ChunksCreated.Add(float64(len(rawChunks)))

	chunks := make([]Chunk, len(rawChunks))
	texts := make([]string, len(rawChunks))
	for i, rc := range rawChunks {
		chunks[i] = Chunk{
			Content:      rc.Content,
			HeaderPath:   rc.HeaderPath(),
			DocumentType: docType,
			SourcePath:   path,
			Index:        i,
		}
		texts[i] = rc.Content
	}

	embeddings, dropped, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		logger.Error("Failed to embed document", zap.String("path", path), zap.Error(err))
		metrics.DocumentFailures.WithLabelValues(StageEmbedding).Inc()
		return nil, &Failure{Stage: StageEmbedding, Subject: path, Error: err.Error()}
	}

	result := &DocumentResult{
		Path:       path,
		Type:       docType,
		Chunks:     chunks,
		Embeddings: embeddings,
		Dropped:    dropped,
	}

	var fail *Failure
	if dropped > 0 {
		logger.Warn("Embedding batches dropped for document",
			zap.String("path", path),
			zap.Int("dropped", dropped),
			zap.Int("total", len(chunks)),
		)
		fail = &Failure{
			Stage:   StageEmbedding,
			Subject: path,
			Error:   fmt.Sprintf("%d of %d chunks dropped from failed embedding batches", dropped, len(chunks)),
		}
	}

	if docType == DocTypePurchaseOrder {
		po, err := p.poAnalyzer.Analyze(ctx, path, text)
		if err != nil {
			metrics.DocumentFailures.WithLabelValues(StagePOAnalysis).Inc()
			return result, &Failure{Stage: StagePOAnalysis, Subject: path, Error: err.Error()}
		}
		result.PO = po
	}

	return result, fail
}
