package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"movie-search/internal/config"
	"movie-search/internal/helper"
	"movie-search/internal/models"
)

// NewEmbedder creates the embedding client for one indexing run. The model is served by
// Ollama or any OpenAI-compatible endpoint.
func NewEmbedder(cfg *config.EmbeddingConfig) (*embeddings.EmbedderImpl, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", models.ErrConfiguration, cfg.BatchSize)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", models.ErrConfiguration)
	}

	log.Debug().Interface("config", map[string]any{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
		"device":          cfg.Device,
		"batch_size":      cfg.BatchSize,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "ollama", "":
		opts, err := ollamaOptions(cfg)
		if err != nil {
			return nil, err
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: initializing ollama: %v", models.ErrConfiguration, err)
		}
		client = llm
	case "openai":
		if cfg.Device != "" && cfg.Device != "cpu" {
			log.Warn().Str("device", cfg.Device).Msg("Device is ignored for remote OpenAI-compatible embedders")
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: initializing openai: %v", models.ErrConfiguration, err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder: %v", models.ErrConfiguration, err)
	}
	return embedder, nil
}

// ollamaOptions maps the device selector onto GPU offload. "cpu" keeps every layer on the
// CPU; accelerator devices leave offload to the server.
func ollamaOptions(cfg *config.EmbeddingConfig) ([]ollama.Option, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	device := strings.ToLower(cfg.Device)
	switch {
	case device == "" || device == "cpu":
		opts = append(opts, ollama.WithRunnerNumGPU(0))
	case device == "gpu" || device == "mps" || device == "cuda" || strings.HasPrefix(device, "cuda:"):
	default:
		return nil, fmt.Errorf("%w: unsupported device %q", models.ErrConfiguration, cfg.Device)
	}
	return opts, nil
}

// EmbedChunks embeds chunk contents batchSize at a time and pairs every chunk with its vector
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, batchSize int) ([]models.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", models.ErrConfiguration, batchSize)
	}

	result := make([]models.EmbeddedChunk, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, c := range batch {
			vec := vectors[i]
			if len(vec) == 0 {
				return nil, fmt.Errorf("embedder returned an empty vector for %s split %d", c.SourceID, c.SplitID)
			}
			if dim == 0 {
				dim = len(vec)
			} else if len(vec) != dim {
				return nil, fmt.Errorf("inconsistent embedding dimension: got %d, expected %d", len(vec), dim)
			}
			result = append(result, models.EmbeddedChunk{
				ID:        helper.GenerateChunkID(c.SourceID, c.SplitID, c.Content),
				Content:   c.Content,
				Metadata:  helper.StringifyMetadata(c.Metadata),
				Embedding: vec,
			})
		}

		log.Debug().Int("done", end).Int("total", len(chunks)).Msg("Embedded batch")
	}

	return result, nil
}

// EmbedQuery embeds a search query with the same model used for the documents
func EmbedQuery(ctx context.Context, embedder embeddings.Embedder, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	vec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vec, nil
}
