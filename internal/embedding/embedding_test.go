package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-search/internal/config"
	"movie-search/internal/models"
)

type fakeEmbedder struct {
	dim     int
	calls   [][]string
	err     error
	shortBy int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts[:len(texts)-f.shortBy] {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	v[0] = float32(len(text))
	return v, nil
}

func chunks(n int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		out[i] = models.Chunk{
			Content:  string(rune('a'+i)) + " chunk",
			SourceID: "movie.json",
			SplitID:  i,
			Metadata: map[string]any{"title": "Heat", "split_id": i},
		}
	}
	return out
}

func TestEmbedChunks_Batches(t *testing.T) {
	f := &fakeEmbedder{dim: 4}

	out, err := EmbedChunks(context.Background(), f, chunks(5), 2)
	require.NoError(t, err)
	require.Len(t, out, 5)

	require.Len(t, f.calls, 3)
	assert.Len(t, f.calls[0], 2)
	assert.Len(t, f.calls[1], 2)
	assert.Len(t, f.calls[2], 1)

	assert.Equal(t, "c chunk", out[2].Content)
	assert.Len(t, out[2].Embedding, 4)
	assert.Equal(t, "Heat", out[2].Metadata["title"])
	assert.Equal(t, "2", out[2].Metadata["split_id"])
	assert.NotEmpty(t, out[2].ID)
	assert.NotEqual(t, out[1].ID, out[2].ID)
}

func TestEmbedChunks_Empty(t *testing.T) {
	f := &fakeEmbedder{dim: 4}
	out, err := EmbedChunks(context.Background(), f, nil, 32)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, f.calls)
}

func TestEmbedChunks_Errors(t *testing.T) {
	t.Run("embedder failure", func(t *testing.T) {
		boom := errors.New("model not found")
		_, err := EmbedChunks(context.Background(), &fakeEmbedder{dim: 4, err: boom}, chunks(3), 2)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		_, err := EmbedChunks(context.Background(), &fakeEmbedder{dim: 4, shortBy: 1}, chunks(3), 8)
		assert.Error(t, err)
	})

	t.Run("bad batch size", func(t *testing.T) {
		_, err := EmbedChunks(context.Background(), &fakeEmbedder{dim: 4}, chunks(3), 0)
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestEmbedQuery(t *testing.T) {
	vec, err := EmbedQuery(context.Background(), &fakeEmbedder{dim: 3}, "heist movie")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	_, err = EmbedQuery(context.Background(), &fakeEmbedder{dim: 3}, "  ")
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	t.Run("ollama cpu", func(t *testing.T) {
		cfg := config.Default().Embedding
		e, err := NewEmbedder(&cfg)
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("ollama cuda", func(t *testing.T) {
		cfg := config.Default().Embedding
		cfg.Device = "cuda:0"
		_, err := NewEmbedder(&cfg)
		assert.NoError(t, err)
	})

	t.Run("openai compatible", func(t *testing.T) {
		cfg := config.EmbeddingConfig{
			Provider:  "openai",
			BaseURL:   "http://localhost:8080/v1",
			Key:       "Bearer sk-test",
			Model:     "text-embedding-3-small",
			Device:    "cpu",
			BatchSize: 16,
		}
		_, err := NewEmbedder(&cfg)
		assert.NoError(t, err)
	})

	bad := map[string]func(*config.EmbeddingConfig){
		"device":   func(c *config.EmbeddingConfig) { c.Device = "tpu" },
		"batch":    func(c *config.EmbeddingConfig) { c.BatchSize = 0 },
		"model":    func(c *config.EmbeddingConfig) { c.Model = "" },
		"provider": func(c *config.EmbeddingConfig) { c.Provider = "cohere" },
	}
	for name, mutate := range bad {
		t.Run("invalid "+name, func(t *testing.T) {
			cfg := config.Default().Embedding
			mutate(&cfg)
			_, err := NewEmbedder(&cfg)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}
