package milvus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanmckee-pacmet/contract-review-2/internal/vector"
)

// fakeAPI implements the api surface in memory.
type fakeAPI struct {
	mu          sync.Mutex
	collections map[string]bool
	upserted    map[string][][]entity.Column
	upsertCalls int
	upsertErrs  []error
	hasErr      error
	createErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		collections: map[string]bool{},
		upserted:    map[string][][]entity.Column{},
	}
}

func (f *fakeAPI) HasCollection(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.collections[name], nil
}

func (f *fakeAPI) CreateCollection(ctx context.Context, schema *entity.Schema, shards int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.collections[schema.CollectionName] {
		return errors.New("collection already exists")
	}
	f.collections[schema.CollectionName] = true
	return nil
}

func (f *fakeAPI) CreateIndex(ctx context.Context, collection, field string, idx entity.Index, async bool) error {
	return nil
}

func (f *fakeAPI) LoadCollection(ctx context.Context, collection string, async bool) error {
	return nil
}

func (f *fakeAPI) Upsert(ctx context.Context, collection, partition string, columns ...entity.Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	f.upserted[collection] = append(f.upserted[collection], columns)
	return nil
}

func (f *fakeAPI) Flush(ctx context.Context, collection string, async bool) error {
	return nil
}

func (f *fakeAPI) Search(ctx context.Context, collection string, vec []float32, topK int, outputFields []string, dim, nlist int) ([]client.SearchResult, error) {
	return nil, nil
}

func (f *fakeAPI) DropCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}

func (f *fakeAPI) Close() error { return nil }

func testStore(a api) *Store {
	s := newStore(a, 4, 16)
	s.retryConfig.InitialDelay = time.Millisecond
	s.retryConfig.MaxDelay = 2 * time.Millisecond
	return s
}

func makePoints(n int) []vector.Point {
	points := make([]vector.Point, n)
	for i := range points {
		points[i] = vector.Point{
			ID:           int64(i + 1),
			Vector:       []float32{1, 0, 0, 0},
			Content:      "chunk",
			DocumentType: "Quality Document",
			SourcePath:   "doc.md",
			ChunkIndex:   i,
		}
	}
	return points
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	fake := newFakeAPI()
	store := testStore(fake)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, "acme_documents"))
	require.NoError(t, store.EnsureCollection(ctx, "acme_documents"))

	assert.Len(t, fake.collections, 1)
}

func TestEnsureCollectionCreateFailure(t *testing.T) {
	fake := newFakeAPI()
	fake.createErr = errors.New("server unavailable")
	store := testStore(fake)

	err := store.EnsureCollection(context.Background(), "acme_documents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create collection")
}

func TestUpsertRetryBound(t *testing.T) {
	fake := newFakeAPI()
	// Transient failure twice, success on the third attempt.
	fake.upsertErrs = []error{errors.New("transient"), errors.New("transient")}
	store := testStore(fake)

	stored, failed, err := store.UpsertBatch(context.Background(), "acme_documents", makePoints(3))
	require.NoError(t, err)

	assert.Equal(t, 3, stored)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 3, fake.upsertCalls, "must stop at the successful third attempt")
	assert.Len(t, fake.upserted["acme_documents"], 1, "batch must be stored exactly once")
}

func TestUpsertExhaustedRetriesSkipsBatch(t *testing.T) {
	fake := newFakeAPI()
	fake.upsertErrs = []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
	}
	store := testStore(fake)

	// 150 points = two internal batches; the first exhausts its 3 attempts,
	// the second succeeds.
	stored, failed, err := store.UpsertBatch(context.Background(), "acme_documents", makePoints(150))
	require.NoError(t, err)

	assert.Equal(t, 50, stored)
	assert.Equal(t, 100, failed)
	assert.Len(t, fake.upserted["acme_documents"], 1)
}

func TestUpsertEmptyInput(t *testing.T) {
	fake := newFakeAPI()
	store := testStore(fake)

	stored, failed, err := store.UpsertBatch(context.Background(), "acme_documents", nil)
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Zero(t, failed)
	assert.Zero(t, fake.upsertCalls)
}

func TestSearchMissingCollection(t *testing.T) {
	fake := newFakeAPI()
	store := testStore(fake)

	_, err := store.Search(context.Background(), "ghost_documents", []float32{1, 0, 0, 0}, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vector.ErrNoCollection))
}

func TestDropCollectionNeverPropagates(t *testing.T) {
	fake := newFakeAPI()
	fake.hasErr = errors.New("connection refused")
	store := testStore(fake)

	// Must not panic or return anything.
	store.DropCollection(context.Background(), "acme_documents")
}
