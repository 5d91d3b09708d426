package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/catalog"
	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/internal/vector"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

const clauseSystemPrompt = `You decide whether a specific notable clause is invoked by a company's contract documents.

You are given the clause, the purchase order invocation scope, and retrieved excerpts from the company's documents. Apply these rules strictly:

1. An excerpt from a Purchase Order or Terms and Conditions document is always admissible evidence.
2. An excerpt from a Quality Document is admissible ONLY if the purchase order invokes all clauses (all_invoked is true) OR this clause's identifier appears in the purchase order's invoked clause list. A quality document describing a clause does not by itself invoke it.
3. Decide invoked "Yes" only when admissible evidence shows the clause applies. Otherwise decide "No".
4. When the decision is "Yes", include every supporting excerpt as a quote, copied verbatim, with the document type it came from. When the decision is "No", include no quotes.
5. Explain the decision briefly in the reasoning field.`

// retrievedChunk is the excerpt shape handed to the model.
type retrievedChunk struct {
	Content      string `json:"content"`
	DocumentType string `json:"document_type"`
	SourcePath   string `json:"source_path"`
	HeaderPath   string `json:"header_path,omitempty"`
}

type clausePromptInput struct {
	Clause            string           `json:"clause"`
	ClauseDescription string           `json:"clause_description"`
	AllInvoked        bool             `json:"all_invoked"`
	InvokedClauses    []string         `json:"invoked_clauses"`
	Chunks            []retrievedChunk `json:"chunks"`
}

// ClauseAnalyzer runs one retrieval and one decision call per catalog entry,
// fanned out over a bounded worker pool. Decisions are post-filtered so the
// quality-document gating rule holds even when the model ignores it.
type ClauseAnalyzer struct {
	store     vector.Store
	embedder  Embedder
	completer StructuredCompleter
	topK      int
	workers   int
}

func NewClauseAnalyzer(store vector.Store, embedder Embedder, completer StructuredCompleter, topK, workers int) *ClauseAnalyzer {
	if topK <= 0 {
		topK = 10
	}
	if workers <= 0 {
		workers = 8
	}
	return &ClauseAnalyzer{
		store:     store,
		embedder:  embedder,
		completer: completer,
		topK:      topK,
		workers:   workers,
	}
}

// AnalyzeAll evaluates every catalog entry against the company collection.
// A failed clause is reported as a Failure and the rest continue; results
// come back in catalog order regardless of completion order.
func (a *ClauseAnalyzer) AnalyzeAll(ctx context.Context, collection string, po *POAnalysis, entries []catalog.Entry) ([]ClauseAnalysis, []Failure) {
	results := make([]*ClauseAnalysis, len(entries))
	failures := make([]Failure, 0)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.workers)

	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, entry catalog.Entry) {
			defer wg.Done()
			defer func() { <-sem }()

			analysis, err := a.analyzeOne(ctx, collection, po, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.ClauseAnalyses.WithLabelValues("error").Inc()
				failures = append(failures, Failure{
					Stage:   StageClause,
					Subject: entry.ID,
					Error:   err.Error(),
				})
				return
			}
			if analysis.Invoked == "Yes" {
				metrics.ClauseAnalyses.WithLabelValues("invoked").Inc()
			} else {
				metrics.ClauseAnalyses.WithLabelValues("not_invoked").Inc()
			}
			results[i] = analysis
		}(i, entry)
	}
	wg.Wait()

	ordered := make([]ClauseAnalysis, 0, len(entries))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, *r)
		}
	}
	return ordered, failures
}

func (a *ClauseAnalyzer) analyzeOne(ctx context.Context, collection string, po *POAnalysis, entry catalog.Entry) (*ClauseAnalysis, error) {
	query := fmt.Sprintf("%s: %s", entry.ID, entry.Description)

	vec, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed clause query: %w", err)
	}

	hits, err := a.store.Search(ctx, collection, vec, a.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	if len(hits) == 0 {
		logger.Debug("No chunks retrieved for clause", zap.String("clause", entry.ID))
		return &ClauseAnalysis{Clause: entry.ID, Invoked: "No", Reasoning: "no relevant document content found"}, nil
	}

	input := clausePromptInput{
		Clause:            entry.ID,
		ClauseDescription: entry.Description,
		Chunks:            make([]retrievedChunk, 0, len(hits)),
	}
	if po != nil {
		input.AllInvoked = po.AllInvoked
		input.InvokedClauses = po.ClauseIdentifiers
	}
	for _, h := range hits {
		input.Chunks = append(input.Chunks, retrievedChunk{
			Content:      h.Content,
			DocumentType: h.DocumentType,
			SourcePath:   h.SourcePath,
			HeaderPath:   h.HeaderPath,
		})
	}

	userPrompt, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode clause input: %w", err)
	}

	var analysis ClauseAnalysis
	if err := a.completer.CompleteStructured(ctx, "analyze_clause", clauseSystemPrompt, string(userPrompt), &analysis); err != nil {
		return nil, err
	}

	analysis.Clause = entry.ID
	enforceInvocationScope(&analysis, entry.ID, po)

	logger.Debug("Clause analyzed",
		zap.String("clause", entry.ID),
		zap.String("invoked", analysis.Invoked),
		zap.Int("quotes", len(analysis.Quotes)),
	)
	return &analysis, nil
}

// enforceInvocationScope applies the quality-document gating rule to the
// model's answer. When the clause is outside the purchase order's scope,
// quality-document quotes are inadmissible; a Yes left with no admissible
// quotes flips to No. Quotes never survive a No decision.
func enforceInvocationScope(analysis *ClauseAnalysis, clauseID string, po *POAnalysis) {
	if analysis.Invoked != "Yes" && analysis.Invoked != "No" {
		analysis.Invoked = "No"
	}

	inScope := po != nil && (po.AllInvoked || containsFold(po.ClauseIdentifiers, clauseID))
	if !inScope {
		kept := analysis.Quotes[:0]
		for _, q := range analysis.Quotes {
			if ParseDocumentType(q.DocumentType) != DocTypeQuality {
				kept = append(kept, q)
			}
		}
		analysis.Quotes = kept
		if analysis.Invoked == "Yes" && len(analysis.Quotes) == 0 {
			analysis.Invoked = "No"
			analysis.Reasoning = "only quality document evidence, clause not invoked by the purchase order"
		}
	}

	if analysis.Invoked != "Yes" {
		analysis.Quotes = nil
	}
}

func containsFold(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}
