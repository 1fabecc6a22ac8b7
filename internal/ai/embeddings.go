package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/utils"
)

// EmbeddingClient produces dense vectors for chunk content via the Google
// Generative AI embeddings API. Batches are submitted through the provider
// limiter so a large document cannot starve other tenants.
type EmbeddingClient struct {
	client    *genai.Client
	model     string
	batchSize int
	limiter   *ProviderLimiter
	logger    *slog.Logger
}

func NewEmbeddingClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*EmbeddingClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &EmbeddingClient{
		client:    client,
		model:     cfg.GoogleEmbeddingsModel,
		batchSize: cfg.EmbedBatchSize,
		limiter:   NewProviderLimiter(cfg.EmbedMaxConcurrent, cfg.EmbedRequestsPerMin, 0),
		logger:    logger,
	}, nil
}

func (e *EmbeddingClient) Close() error {
	return e.client.Close()
}

// EmbedTexts returns one vector per input text, in input order. The whole
// call fails if any batch fails; callers retry the stage as a unit.
func (e *EmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	em := e.client.EmbeddingModel(e.model)

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, utils.NewCancelled("embedding cancelled while queued")
		}
		startedAt := time.Now()
		resp, err := em.BatchEmbedContents(ctx, batch)
		e.limiter.Release()

		if err != nil {
			return nil, classifyGenAIError("embed batch", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, utils.NewTransient(
				fmt.Sprintf("embedding batch size mismatch: sent %d got %d", end-start, len(resp.Embeddings)), nil)
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, emb.Values)
		}

		e.logger.Debug("embedded batch",
			"count", end-start, "duration_ms", time.Since(startedAt).Milliseconds())
	}
	return vectors, nil
}

// classifyGenAIError maps Google API failures into the pipeline taxonomy.
// The genai client wraps googleapi errors, so match on message content.
func classifyGenAIError(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return utils.NewRateLimit(op+" rate limited", err)
	case strings.Contains(msg, "context canceled") || strings.Contains(msg, "context deadline exceeded"):
		return utils.NewCancelled(op + " cancelled")
	case strings.Contains(msg, "400") || strings.Contains(msg, "INVALID_ARGUMENT"):
		return utils.NewValidation(utils.CodeExternalService, op+" rejected: "+msg)
	default:
		return utils.NewTransient(op+" failed", err)
	}
}
