package vector

import (
	"context"
	"errors"
)

// ErrNoCollection marks a search against a collection that does not exist,
// which indicates the caller skipped EnsureCollection.
var ErrNoCollection = errors.New("collection does not exist")

// Point is one chunk embedding plus its payload. IDs are stable content
// hashes (document path + chunk offset) so re-reviewing the same files
// overwrites the same points instead of colliding batch-local counters.
type Point struct {
	ID           int64
	Vector       []float32
	Content      string
	DocumentType string
	SourcePath   string
	HeaderPath   string
	ChunkIndex   int
}

// Hit is a similarity search result with its stored payload.
type Hit struct {
	Score        float32
	Content      string
	DocumentType string
	SourcePath   string
	HeaderPath   string
}

// Store is the vector database seen by the review pipeline. One collection
// per company; implementations must make EnsureCollection idempotent and
// must never let DropCollection propagate an error.
type Store interface {
	// EnsureCollection creates the named collection if absent. Creation
	// failure is fatal to the calling job.
	EnsureCollection(ctx context.Context, name string) error

	// UpsertBatch stores points in internal batches with bounded retries.
	// A batch that exhausts its retries is skipped, not fatal; the returned
	// counts let the caller report an incomplete index.
	UpsertBatch(ctx context.Context, name string, points []Point) (stored int, failed int, err error)

	// Search returns up to topK nearest points by cosine similarity, or
	// ErrNoCollection when the collection was never created.
	Search(ctx context.Context, name string, vector []float32, topK int) ([]Hit, error)

	// DropCollection is best-effort; failures are logged, never returned.
	DropCollection(ctx context.Context, name string)
}
