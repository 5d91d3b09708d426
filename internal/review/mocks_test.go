package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/seanmckee-pacmet/contract-review-2/internal/storage/models"
	"github.com/seanmckee-pacmet/contract-review-2/internal/vector"
)

// scriptedCompleter routes structured-completion calls by task to per-task
// handlers so tests can script classification, PO extraction, and clause
// decisions independently.
type scriptedCompleter struct {
	classifyFn func(sample string) (string, error)
	poFn       func(sample string) (POAnalysis, error)
	clauseFn   func(input clausePromptInput) (ClauseAnalysis, error)
}

func (s *scriptedCompleter) CompleteStructured(ctx context.Context, task, systemPrompt, userPrompt string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch task {
	case "classify_document":
		if s.classifyFn == nil {
			return errors.New("unexpected classification call")
		}
		label, err := s.classifyFn(userPrompt)
		if err != nil {
			return err
		}
		out.(*documentTypeResponse).DocumentType = label
		return nil
	case "analyze_purchase_order":
		if s.poFn == nil {
			return errors.New("unexpected purchase order call")
		}
		po, err := s.poFn(userPrompt)
		if err != nil {
			return err
		}
		*out.(*POAnalysis) = po
		return nil
	case "analyze_clause":
		if s.clauseFn == nil {
			return errors.New("unexpected clause call")
		}
		var input clausePromptInput
		if err := json.Unmarshal([]byte(userPrompt), &input); err != nil {
			return err
		}
		analysis, err := s.clauseFn(input)
		if err != nil {
			return err
		}
		*out.(*ClauseAnalysis) = analysis
		return nil
	default:
		return fmt.Errorf("unknown task %q", task)
	}
}

// fakeEmbedder returns fixed-size vectors; drop simulates trailing chunks
// lost to failed embedding batches.
type fakeEmbedder struct {
	dim      int
	drop     int
	textsErr error
	queryErr error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, int, error) {
	if f.textsErr != nil {
		return nil, 0, f.textsErr
	}
	n := len(texts) - f.drop
	if n < 0 {
		n = 0
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1
	}
	return out, f.drop, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

// fakeStore keeps points in memory and serves every stored point back as a
// search hit, newest collection state wins.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]bool
	points      map[string][]vector.Point
	dropped     []string
	ensureErr   error
	upsertErr   error
	searchErr   error
	failPerCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: map[string]bool{},
		points:      map[string][]vector.Point{},
	}
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.collections[name] = true
	return nil
}

func (f *fakeStore) UpsertBatch(ctx context.Context, name string, points []vector.Point) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, 0, f.upsertErr
	}
	failed := f.failPerCall
	if failed > len(points) {
		failed = len(points)
	}
	stored := points[:len(points)-failed]
	f.points[name] = append(f.points[name], stored...)
	return len(stored), failed, nil
}

func (f *fakeStore) Search(ctx context.Context, name string, vec []float32, topK int) ([]vector.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var hits []vector.Hit
	for _, p := range f.points[name] {
		if len(hits) >= topK {
			break
		}
		hits = append(hits, vector.Hit{
			Score:        1,
			Content:      p.Content,
			DocumentType: p.DocumentType,
			SourcePath:   p.SourcePath,
			HeaderPath:   p.HeaderPath,
		})
	}
	return hits, nil
}

func (f *fakeStore) DropCollection(ctx context.Context, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	delete(f.points, name)
	f.dropped = append(f.dropped, name)
}

// fakeParser serves documents from a map; missing paths fail.
type fakeParser struct {
	docs map[string]string
	errs map[string]error
}

func (f *fakeParser) ParseDocument(ctx context.Context, path string) (string, error) {
	if err, ok := f.errs[path]; ok {
		return "", err
	}
	text, ok := f.docs[path]
	if !ok {
		return "", fmt.Errorf("no such document: %s", path)
	}
	return text, nil
}

type fakeJobStore struct {
	mu        sync.Mutex
	jobs      []*models.ReviewJob
	insertErr error
}

func (f *fakeJobStore) InsertJob(job *models.ReviewJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}
