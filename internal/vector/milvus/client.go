package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/internal/vector"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/retry"
)

const upsertBatchSize = 100

// api is the slice of the Milvus surface the store uses; tests substitute a
// fake so retry and idempotency behavior can be asserted without a server.
type api interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shards int32) error
	CreateIndex(ctx context.Context, collection, field string, idx entity.Index, async bool) error
	LoadCollection(ctx context.Context, collection string, async bool) error
	Upsert(ctx context.Context, collection, partition string, columns ...entity.Column) error
	Flush(ctx context.Context, collection string, async bool) error
	Search(ctx context.Context, collection string, vec []float32, topK int, outputFields []string, dim int, nlist int) ([]client.SearchResult, error)
	DropCollection(ctx context.Context, name string) error
	Close() error
}

// Store adapts Milvus to the per-company collection model of the review
// pipeline: cosine metric, stable int64 point ids, batched upserts with
// bounded backoff.
type Store struct {
	api         api
	dim         int
	nlist       int
	retryConfig retry.Config
}

func NewStore(endpoint string, dim, nlist int) (*Store, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.Int("vector_dim", dim),
	)

	return newStore(&grpcAPI{c: c}, dim, nlist), nil
}

func newStore(a api, dim, nlist int) *Store {
	if nlist <= 0 {
		nlist = 1024
	}
	return &Store{
		api:   a,
		dim:   dim,
		nlist: nlist,
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   4 * time.Second,
			MaxDelay:       10 * time.Second,
			Multiplier:     1.0,
			JitterFraction: 0,
			Logger:         logger.GetLogger(),
		},
	}
}

func (s *Store) Close() error {
	return s.api.Close()
}

func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	has, err := s.api.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Debug("Collection already exists", zap.String("collection", name))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "contract document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dim),
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "document_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "source_path",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     "header_path",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "2048",
				},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := s.api.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, s.nlist)
	if err != nil {
		return fmt.Errorf("failed to build index spec: %w", err)
	}
	if err := s.api.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.api.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", name))
	return nil
}

func (s *Store) UpsertBatch(ctx context.Context, name string, points []vector.Point) (int, int, error) {
	if len(points) == 0 {
		return 0, 0, nil
	}

	stored := 0
	failed := 0
	totalBatches := (len(points) + upsertBatchSize - 1) / upsertBatchSize

	for i := 0; i < len(points); i += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return stored, failed, err
		}

		end := i + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[i:end]
		batchNum := i/upsertBatchSize + 1

		err := retry.Do(ctx, s.retryConfig, func() error {
			return s.api.Upsert(ctx, name, "", s.columns(batch)...)
		})
		if err != nil {
			logger.Error("Upsert batch failed after retries, skipping",
				zap.String("collection", name),
				zap.Int("batch", batchNum),
				zap.Int("total_batches", totalBatches),
				zap.Error(err),
			)
			metrics.UpsertBatchFailures.Inc()
			failed += len(batch)
			continue
		}

		stored += len(batch)
		metrics.PointsUpserted.Add(float64(len(batch)))
		logger.Debug("Upsert batch stored",
			zap.String("collection", name),
			zap.Int("batch", batchNum),
			zap.Int("total_batches", totalBatches),
		)
	}

	if stored > 0 {
		if err := s.api.Flush(ctx, name, false); err != nil {
			logger.Warn("Failed to flush collection", zap.String("collection", name), zap.Error(err))
		}
	}

	return stored, failed, nil
}

func (s *Store) columns(batch []vector.Point) []entity.Column {
	ids := make([]int64, len(batch))
	vectors := make([][]float32, len(batch))
	contents := make([]string, len(batch))
	docTypes := make([]string, len(batch))
	sourcePaths := make([]string, len(batch))
	headerPaths := make([]string, len(batch))
	chunkIndexes := make([]int64, len(batch))

	for i, p := range batch {
		ids[i] = p.ID
		vectors[i] = p.Vector
		contents[i] = p.Content
		docTypes[i] = p.DocumentType
		sourcePaths[i] = p.SourcePath
		headerPaths[i] = p.HeaderPath
		chunkIndexes[i] = int64(p.ChunkIndex)
	}

	return []entity.Column{
		entity.NewColumnInt64("id", ids),
		entity.NewColumnFloatVector("embedding", s.dim, vectors),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("document_type", docTypes),
		entity.NewColumnVarChar("source_path", sourcePaths),
		entity.NewColumnVarChar("header_path", headerPaths),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
	}
}

func (s *Store) Search(ctx context.Context, name string, vec []float32, topK int) ([]vector.Hit, error) {
	if topK <= 0 {
		topK = 10
	}

	has, err := s.api.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", vector.ErrNoCollection, name)
	}

	outputFields := []string{"content", "document_type", "source_path", "header_path"}
	searchResults, err := s.api.Search(ctx, name, vec, topK, outputFields, s.dim, s.nlist)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []vector.Hit
	for _, sr := range searchResults {
		contentCol := sr.Fields.GetColumn("content")
		docTypeCol := sr.Fields.GetColumn("document_type")
		sourceCol := sr.Fields.GetColumn("source_path")
		headerCol := sr.Fields.GetColumn("header_path")

		for i := 0; i < sr.ResultCount; i++ {
			hit := vector.Hit{Score: sr.Scores[i]}
			if contentCol != nil {
				if v, err := contentCol.Get(i); err == nil {
					hit.Content, _ = v.(string)
				}
			}
			if docTypeCol != nil {
				if v, err := docTypeCol.Get(i); err == nil {
					hit.DocumentType, _ = v.(string)
				}
			}
			if sourceCol != nil {
				if v, err := sourceCol.Get(i); err == nil {
					hit.SourcePath, _ = v.(string)
				}
			}
			if headerCol != nil {
				if v, err := headerCol.Get(i); err == nil {
					hit.HeaderPath, _ = v.(string)
				}
			}
			hits = append(hits, hit)
		}
	}

	logger.Debug("Vector search completed",
		zap.String("collection", name),
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
	)

	return hits, nil
}

// DropCollection is best-effort; deletion failures are logged and swallowed.
func (s *Store) DropCollection(ctx context.Context, name string) {
	has, err := s.api.HasCollection(ctx, name)
	if err != nil {
		logger.Warn("Failed to check collection before drop", zap.String("collection", name), zap.Error(err))
		return
	}
	if !has {
		return
	}
	if err := s.api.DropCollection(ctx, name); err != nil {
		logger.Warn("Failed to drop collection", zap.String("collection", name), zap.Error(err))
		return
	}
	logger.Info("Collection dropped", zap.String("collection", name))
}

// grpcAPI adapts the Milvus SDK client to the narrowed api surface.
type grpcAPI struct {
	c client.Client
}

func (g *grpcAPI) HasCollection(ctx context.Context, name string) (bool, error) {
	return g.c.HasCollection(ctx, name)
}

func (g *grpcAPI) CreateCollection(ctx context.Context, schema *entity.Schema, shards int32) error {
	return g.c.CreateCollection(ctx, schema, shards)
}

func (g *grpcAPI) CreateIndex(ctx context.Context, collection, field string, idx entity.Index, async bool) error {
	return g.c.CreateIndex(ctx, collection, field, idx, async)
}

func (g *grpcAPI) LoadCollection(ctx context.Context, collection string, async bool) error {
	return g.c.LoadCollection(ctx, collection, async)
}

func (g *grpcAPI) Upsert(ctx context.Context, collection, partition string, columns ...entity.Column) error {
	_, err := g.c.Upsert(ctx, collection, partition, columns...)
	return err
}

func (g *grpcAPI) Flush(ctx context.Context, collection string, async bool) error {
	return g.c.Flush(ctx, collection, async)
}

func (g *grpcAPI) Search(ctx context.Context, collection string, vec []float32, topK int, outputFields []string, dim, nlist int) ([]client.SearchResult, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, err
	}
	return g.c.Search(
		ctx,
		collection,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(vec)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
}

func (g *grpcAPI) DropCollection(ctx context.Context, name string) error {
	return g.c.DropCollection(ctx, name)
}

func (g *grpcAPI) Close() error {
	return g.c.Close()
}
