package index

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/errgroup"
)

const (
	embedBatchSize = 64
	embedParallel  = 4
)

// Embedder turns texts into vectors, one per text in input order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder. Extra options are appended after the defaults.
func NewOpenAIEmbedder(apiKey, model string, timeout time.Duration, retries int, opts ...option.RequestOption) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(retries),
	}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Embed batches texts and runs the batches concurrently
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallel)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]
		offset := start
		g.Go(func() error {
			resp, err := e.client.Embeddings.New(gctx, openai.EmbeddingNewParams{
				Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
				Model: openai.EmbeddingModel(e.model),
			})
			if err != nil {
				return fmt.Errorf("embedding request failed: %w", err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(batch))
			}
			for _, d := range resp.Data {
				idx := int(d.Index)
				if idx < 0 || idx >= len(batch) {
					return fmt.Errorf("embedding index %d out of range", idx)
				}
				out[offset+idx] = toFloat32(d.Embedding)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
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
