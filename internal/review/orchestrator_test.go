package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanmckee-pacmet/contract-review-2/internal/catalog"
	"github.com/seanmckee-pacmet/contract-review-2/internal/chunker"
)

func writeCatalog(t *testing.T, content string) *catalog.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notable_clauses.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return catalog.NewLoader(path)
}

func newTestOrchestrator(t *testing.T, loader *catalog.Loader, p *fakeParser, completer *scriptedCompleter, store *fakeStore, history JobStore) *Orchestrator {
	t.Helper()
	embedder := &fakeEmbedder{dim: 4}
	classifier := NewClassifier(completer, 2000)
	poAnalyzer := NewPOAnalyzer(completer, 4000)
	pipeline := NewPipeline(p, classifier, poAnalyzer, embedder, chunker.DefaultConfig(), 2)
	clauses := NewClauseAnalyzer(store, embedder, completer, 10, 2)
	return NewOrchestrator(loader, pipeline, clauses, store, history)
}

func TestReviewDocumentsEndToEnd(t *testing.T) {
	loader := writeCatalog(t, `{
		"WQR1": "First article inspection required",
		"WQR3": "Source inspection at supplier facility"
	}`)

	p := &fakeParser{docs: map[string]string{
		"po.md": "PURCHASE ORDER\nQuality clauses WQR1, WQR2 apply to this order.",
		"qm.md": "QUALITY MANUAL\nWQR1: first article inspection per AS9102.",
	}}

	completer := &scriptedCompleter{
		classifyFn: classifyByMarker,
		poFn: func(sample string) (POAnalysis, error) {
			return POAnalysis{
				AllInvoked:        false,
				ClauseIdentifiers: []string{"WQR1", "WQR2"},
			}, nil
		},
		clauseFn: func(input clausePromptInput) (ClauseAnalysis, error) {
			for _, c := range input.Chunks {
				if strings.Contains(c.Content, input.Clause) {
					return ClauseAnalysis{
						Invoked: "Yes",
						Quotes:  []Quote{{Clause: input.Clause, Quote: c.Content, DocumentType: c.DocumentType}},
					}, nil
				}
			}
			return ClauseAnalysis{Invoked: "No", Reasoning: "no supporting evidence"}, nil
		},
	}

	store := newFakeStore()
	history := &fakeJobStore{}
	orch := newTestOrchestrator(t, loader, p, completer, store, history)

	result, err := orch.ReviewDocuments(context.Background(), []string{"po.md", "qm.md"}, "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", result.CompanyName)
	assert.Equal(t, map[string]DocumentType{
		"po.md": DocTypePurchaseOrder,
		"qm.md": DocTypeQuality,
	}, result.DocumentTypes)

	require.NotNil(t, result.POAnalysis)
	assert.False(t, result.POAnalysis.AllInvoked)
	assert.Equal(t, []string{"WQR1", "WQR2"}, result.POAnalysis.ClauseIdentifiers)

	// WQR1 is invoked by the order and evidenced; WQR3 is neither.
	require.Len(t, result.ClauseAnalysis, 1)
	assert.Equal(t, "WQR1", result.ClauseAnalysis[0].Clause)
	assert.Equal(t, "Yes", result.ClauseAnalysis[0].Invoked)
	assert.NotEmpty(t, result.ClauseAnalysis[0].Quotes)

	assert.Empty(t, result.Failures)
	assert.True(t, store.collections["Acme_Corp_documents"])
	assert.NotEmpty(t, store.points["Acme_Corp_documents"])

	require.Len(t, history.jobs, 1)
	assert.Equal(t, "Acme Corp", history.jobs[0].CompanyName)
	assert.Equal(t, []string{"WQR1"}, history.jobs[0].InvokedClauses)
}

func TestReviewDocumentsFiltersNotInvoked(t *testing.T) {
	loader := writeCatalog(t, `{"WQR1": "fai", "WQR2": "coc", "WQR3": "source"}`)
	p := &fakeParser{docs: map[string]string{"tc.md": "TERMS\nGeneral terms."}}

	completer := &scriptedCompleter{
		classifyFn: classifyByMarker,
		clauseFn: func(input clausePromptInput) (ClauseAnalysis, error) {
			return ClauseAnalysis{Invoked: "No", Reasoning: "not invoked"}, nil
		},
	}

	orch := newTestOrchestrator(t, loader, p, completer, newFakeStore(), nil)
	result, err := orch.ReviewDocuments(context.Background(), []string{"tc.md"}, "acme")
	require.NoError(t, err)

	assert.Empty(t, result.ClauseAnalysis)
	assert.Nil(t, result.POAnalysis)
	for _, a := range result.ClauseAnalysis {
		assert.NotEqual(t, "No", a.Invoked)
	}
}

func TestReviewDocumentsPOAnalysisFailureAbortsJob(t *testing.T) {
	loader := writeCatalog(t, `{"WQR1": "fai"}`)
	p := &fakeParser{docs: map[string]string{"po.md": "PURCHASE ORDER\nWQR1"}}

	completer := &scriptedCompleter{
		classifyFn: classifyByMarker,
		poFn: func(string) (POAnalysis, error) {
			return POAnalysis{}, errors.New("malformed model output")
		},
	}

	orch := newTestOrchestrator(t, loader, p, completer, newFakeStore(), nil)
	_, err := orch.ReviewDocuments(context.Background(), []string{"po.md"}, "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invocation scope")
}

func TestReviewDocumentsCatalogFailureAbortsJob(t *testing.T) {
	loader := catalog.NewLoader(filepath.Join(t.TempDir(), "missing.json"))
	orch := newTestOrchestrator(t, loader, &fakeParser{}, &scriptedCompleter{}, newFakeStore(), nil)

	_, err := orch.ReviewDocuments(context.Background(), nil, "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}

func TestReviewDocumentsCollectionFailureAbortsJob(t *testing.T) {
	loader := writeCatalog(t, `{"WQR1": "fai"}`)
	store := newFakeStore()
	store.ensureErr = errors.New("milvus unreachable")

	orch := newTestOrchestrator(t, loader, &fakeParser{}, &scriptedCompleter{}, store, nil)
	_, err := orch.ReviewDocuments(context.Background(), nil, "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection")
}

func TestReviewDocumentsReportsUpsertShortfall(t *testing.T) {
	loader := writeCatalog(t, `{"WQR1": "fai"}`)
	p := &fakeParser{docs: map[string]string{"tc.md": "TERMS\nNet 30."}}
	store := newFakeStore()
	store.failPerCall = 1

	completer := &scriptedCompleter{
		classifyFn: classifyByMarker,
		clauseFn: func(input clausePromptInput) (ClauseAnalysis, error) {
			return ClauseAnalysis{Invoked: "No"}, nil
		},
	}

	orch := newTestOrchestrator(t, loader, p, completer, store, nil)
	result, err := orch.ReviewDocuments(context.Background(), []string{"tc.md"}, "acme")
	require.NoError(t, err)

	require.NotEmpty(t, result.Failures)
	assert.Equal(t, StageUpsert, result.Failures[0].Stage)
}

func TestMergePOAnalysesDeterministicUnion(t *testing.T) {
	docs := []*DocumentResult{
		{Path: "a_po.md", PO: &POAnalysis{
			AllInvoked:        false,
			ClauseIdentifiers: []string{"WQR1", "WQR2"},
			Requirements:      []string{"DFARS compliance"},
		}},
		{Path: "b_po.md", PO: &POAnalysis{
			AllInvoked:        true,
			ClauseIdentifiers: []string{"wqr2", "WQR5"},
			Requirements:      []string{"DFARS compliance", "ITAR"},
		}},
		{Path: "c_tc.md"},
	}

	merged := mergePOAnalyses(docs)
	require.NotNil(t, merged)
	assert.True(t, merged.AllInvoked)
	assert.Equal(t, []string{"WQR1", "WQR2", "WQR5"}, merged.ClauseIdentifiers)
	assert.Equal(t, []string{"DFARS compliance", "ITAR"}, merged.Requirements)
}

func TestMergePOAnalysesNoOrders(t *testing.T) {
	assert.Nil(t, mergePOAnalyses([]*DocumentResult{{Path: "tc.md"}}))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "Acme_Corp_documents", CollectionName("Acme Corp"))
	assert.Equal(t, "acme_documents", CollectionName("acme"))
	assert.Equal(t, "c_3M_documents", CollectionName("3M"))
	assert.Equal(t, "c__documents", CollectionName(""))
}

func TestClearCompanyCollection(t *testing.T) {
	store := newFakeStore()
	store.collections["acme_documents"] = true

	orch := NewOrchestrator(nil, nil, nil, store, nil)
	orch.ClearCompanyCollection(context.Background(), "acme")

	assert.Equal(t, []string{"acme_documents"}, store.dropped)
	assert.False(t, store.collections["acme_documents"])
}
