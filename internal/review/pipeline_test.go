package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanmckee-pacmet/contract-review-2/internal/chunker"
)

// classifyByMarker labels documents from a marker word in the text.
func classifyByMarker(sample string) (string, error) {
	switch {
	case strings.Contains(sample, "PURCHASE ORDER"):
		return string(DocTypePurchaseOrder), nil
	case strings.Contains(sample, "QUALITY MANUAL"):
		return string(DocTypeQuality), nil
	case strings.Contains(sample, "TERMS"):
		return string(DocTypeTerms), nil
	default:
		return string(DocTypeUnknown), nil
	}
}

func testPipeline(p *fakeParser, completer *scriptedCompleter, embedder *fakeEmbedder) *Pipeline {
	classifier := NewClassifier(completer, 2000)
	poAnalyzer := NewPOAnalyzer(completer, 4000)
	return NewPipeline(p, classifier, poAnalyzer, embedder, chunker.DefaultConfig(), 2)
}

func TestPipelineIsolatesDocumentFailures(t *testing.T) {
	p := &fakeParser{
		docs: map[string]string{
			"a_po.md": "PURCHASE ORDER\nWQR1 applies.",
			"c_tc.md": "TERMS\nNet 30.",
		},
		errs: map[string]error{
			"b_scan.tiff": errors.New("unparseable document"),
		},
	}
	completer := &scriptedCompleter{
		classifyFn: classifyByMarker,
		poFn: func(sample string) (POAnalysis, error) {
			return POAnalysis{ClauseIdentifiers: []string{"WQR1"}}, nil
		},
	}

	pipeline := testPipeline(p, completer, &fakeEmbedder{dim: 4})
	docs, failures := pipeline.Run(context.Background(), []string{"a_po.md", "b_scan.tiff", "c_tc.md"})

	require.Len(t, docs, 2)
	assert.Equal(t, "a_po.md", docs[0].Path)
	assert.Equal(t, DocTypePurchaseOrder, docs[0].Type)
	assert.Equal(t, "c_tc.md", docs[1].Path)
	assert.Equal(t, DocTypeTerms, docs[1].Type)

	require.Len(t, failures, 1)
	assert.Equal(t, StageParse, failures[0].Stage)
	assert.Equal(t, "b_scan.tiff", failures[0].Subject)
}

func TestPipelineClassificationFailureDegradesToUnknown(t *testing.T) {
	p := &fakeParser{docs: map[string]string{"doc.md": "some content"}}
	completer := &scriptedCompleter{
		classifyFn: func(string) (string, error) { return "", errors.New("model down") },
	}

	pipeline := testPipeline(p, completer, &fakeEmbedder{dim: 4})
	docs, failures := pipeline.Run(context.Background(), []string{"doc.md"})

	require.Len(t, docs, 1)
	assert.Equal(t, DocTypeUnknown, docs[0].Type)
	assert.Empty(t, failures, "classification failure is not a pipeline failure")
}

func TestPipelineRecordsDroppedEmbeddings(t *testing.T) {
	p := &fakeParser{docs: map[string]string{"tc.md": "TERMS\n" + strings.Repeat("word ", 600)}}
	completer := &scriptedCompleter{classifyFn: classifyByMarker}

	pipeline := testPipeline(p, completer, &fakeEmbedder{dim: 4, drop: 1})
	docs, failures := pipeline.Run(context.Background(), []string{"tc.md"})

	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].Dropped)
	assert.Equal(t, len(docs[0].Chunks)-1, len(docs[0].Embeddings))

	require.Len(t, failures, 1)
	assert.Equal(t, StageEmbedding, failures[0].Stage)
}

func TestPipelinePOAnalysisFailure(t *testing.T) {
	p := &fakeParser{docs: map[string]string{"po.md": "PURCHASE ORDER\nWQR1"}}
	completer := &scriptedCompleter{
		classifyFn: classifyByMarker,
		poFn: func(string) (POAnalysis, error) {
			return POAnalysis{}, errors.New("malformed model output")
		},
	}

	pipeline := testPipeline(p, completer, &fakeEmbedder{dim: 4})
	_, failures := pipeline.Run(context.Background(), []string{"po.md"})

	require.Len(t, failures, 1)
	assert.Equal(t, StagePOAnalysis, failures[0].Stage)
	assert.Equal(t, "po.md", failures[0].Subject)
}

func TestPipelineResultsSortedByPath(t *testing.T) {
	p := &fakeParser{docs: map[string]string{
		"z.md": "TERMS z",
		"a.md": "TERMS a",
		"m.md": "TERMS m",
	}}
	completer := &scriptedCompleter{classifyFn: classifyByMarker}

	pipeline := testPipeline(p, completer, &fakeEmbedder{dim: 4})
	docs, _ := pipeline.Run(context.Background(), []string{"z.md", "a.md", "m.md"})

	require.Len(t, docs, 3)
	assert.Equal(t, "a.md", docs[0].Path)
	assert.Equal(t, "m.md", docs[1].Path)
	assert.Equal(t, "z.md", docs[2].Path)
}
