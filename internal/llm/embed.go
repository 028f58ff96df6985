package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"openworker/internal/logging"
	"openworker/internal/metrics"
)

const embedBatchSize = 64

// Embedder calls the embeddings endpoint in batches, paced by a rate
// limiter.
type Embedder struct {
	api     openai.Client
	model   string
	limiter *rate.Limiter
	opts    []option.RequestOption
	logger  *slog.Logger
}

// NewEmbedder returns an embedder for model. A requestsPerSecond of zero
// leaves requests unpaced.
func NewEmbedder(api openai.Client, model string, requestsPerSecond float64, logger *slog.Logger, opts ...option.RequestOption) *Embedder {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Embedder{
		api:     api,
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  logging.OrDiscard(logger),
	}
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		began := time.Now()
		resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: e.model,
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts[start:end]},
		}, e.opts...)
		metrics.LLMCalls.WithLabelValues("embed", metrics.Status(err)).Inc()
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", start/embedBatchSize, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embed batch %d: got %d vectors for %d inputs", start/embedBatchSize, len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			i := int(d.Index)
			if i < 0 || i >= end-start {
				return nil, fmt.Errorf("embed batch %d: index %d out of range", start/embedBatchSize, i)
			}
			out[start+i] = toFloat32(d.Embedding)
		}
		e.logger.Debug("llm.embed", "model", e.model, "count", end-start,
			"duration_ms", time.Since(began).Milliseconds())
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
