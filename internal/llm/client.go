package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/circuitbreaker"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/retry"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/utils"
)

// ErrMalformedOutput marks a model response that did not conform to the
// requested schema. It is never retried; callers decide whether it is fatal
// (PO analysis), skippable (clause analysis), or coercible (classification).
var ErrMalformedOutput = errors.New("malformed model output")

// EmbeddingCache stores embedding vectors keyed by content hash.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Config struct {
	APIKey             string
	Model              string
	EmbeddingModel     string
	Temperature        float32
	MaxTokens          int
	EmbeddingBatchSize int
	EmbeddingRPS       float64
	Cache              EmbeddingCache
	CacheTTL           time.Duration
}

type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	batchSize      int
	limiter        *rate.Limiter
	cache          EmbeddingCache
	cacheTTL       time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(cfg Config) *Client {
	if cfg.EmbeddingBatchSize <= 0 {
		cfg.EmbeddingBatchSize = 100
	}
	if cfg.EmbeddingRPS <= 0 {
		cfg.EmbeddingRPS = 1.0
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 7 * 24 * time.Hour
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.Int("embedding_batch_size", cfg.EmbeddingBatchSize),
	)

	return &Client{
		api:            openai.NewClient(cfg.APIKey),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		batchSize:      cfg.EmbeddingBatchSize,
		limiter:        rate.NewLimiter(rate.Limit(cfg.EmbeddingRPS), 1),
		cache:          cfg.Cache,
		cacheTTL:       cfg.CacheTTL,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// CompleteStructured issues one chat completion constrained to the JSON
// schema generated from out's type and unmarshals the response into out.
// Transport errors are retried; a schema-violating response returns
// ErrMalformedOutput without retrying.
func (c *Client) CompleteStructured(ctx context.Context, task, systemPrompt, userPrompt string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	schema, err := jsonschema.GenerateSchemaForType(out)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", task, err)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   task,
				Schema: schema,
				Strict: true,
			},
		},
	}

	var content string
	err = c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateChatCompletion(ctx, req)
			if err != nil {
				return fmt.Errorf("completion failed for %s: %w", task, err)
			}
			if len(resp.Choices) == 0 {
				return retry.Permanent(fmt.Errorf("%w: empty choices for %s", ErrMalformedOutput, task))
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		logger.Warn("Model response failed schema unmarshal",
			zap.String("task", task),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, task, err)
	}

	logger.Debug("Structured completion parsed", zap.String("task", task))
	return nil
}

// EmbedQuery embeds a single query string, consulting the content-hash cache
// first when one is configured.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	key := utils.HashString(c.embeddingModel + ":" + text)
	if c.cache != nil {
		if vec, ok, err := c.cache.GetEmbedding(ctx, key); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return vec, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	var embedding []float32
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("failed to embed query: %w", err)
			}
			embedding = resp.Data[0].Embedding
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, key, embedding, c.cacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// EmbedTexts embeds texts in fixed-size batches with pacing between batches
// to stay under provider rate limits. A failed batch is logged and dropped,
// not retried; the returned dropped count tells the caller how many vectors
// are missing so it can re-align by zipping to the shorter list.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	dropped := 0

	totalBatches := (len(texts) + c.batchSize - 1) / c.batchSize
	for i := 0; i < len(texts); i += c.batchSize {
		if err := ctx.Err(); err != nil {
			return embeddings, dropped, err
		}

		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]
		batchNum := i/c.batchSize + 1

		err := c.cb.Execute(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			resp, err := c.api.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return err
			}
			for _, data := range resp.Data {
				embeddings = append(embeddings, data.Embedding)
			}
			return nil
		})
		if err != nil {
			logger.Error("Embedding batch failed, dropping batch",
				zap.Int("batch", batchNum),
				zap.Int("total_batches", totalBatches),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			metrics.EmbeddingBatches.WithLabelValues("failed").Inc()
			dropped += len(batch)
		} else {
			metrics.EmbeddingBatches.WithLabelValues("ok").Inc()
			logger.Debug("Embedding batch processed",
				zap.Int("batch", batchNum),
				zap.Int("total_batches", totalBatches),
			)
		}

		if end < len(texts) {
			if err := c.limiter.Wait(ctx); err != nil {
				return embeddings, dropped, err
			}
		}
	}

	return embeddings, dropped, nil
}
