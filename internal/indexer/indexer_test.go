package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-search/internal/chromemdb"
	"movie-search/internal/config"
	"movie-search/internal/loader"
	"movie-search/internal/models"
	"movie-search/internal/splitter"
)

// hashEmbedder produces a deterministic 8-dimensional bag-of-letters vector
type hashEmbedder struct {
	calls int
	err   error
}

func (h *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, 8)
	for _, r := range strings.ToLower(text) {
		v[int(r)%8]++
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

type recordingWriter struct {
	got []models.EmbeddedChunk
	err error
}

func (r *recordingWriter) WriteChunks(_ context.Context, chunks []models.EmbeddedChunk) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, chunks...)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Splitter.Length = 4
	cfg.Splitter.Overlap = 1
	cfg.Embedding.BatchSize = 2
	return cfg
}

func writeMovies(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestNew_Validation(t *testing.T) {
	s, err := splitter.New(4, 1)
	require.NoError(t, err)
	w := &recordingWriter{}

	_, err = New(s, nil, 2, w)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	_, err = New(s, &hashEmbedder{}, 0, w)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	_, err = New(s, &hashEmbedder{}, 2)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	_, err = New(splitter.WordSplitter{}, &hashEmbedder{}, 2, w)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestPipeline_Run(t *testing.T) {
	s, err := splitter.New(4, 1)
	require.NoError(t, err)
	e := &hashEmbedder{}
	w1, w2 := &recordingWriter{}, &recordingWriter{}
	p, err := New(s, e, 2, w1, w2)
	require.NoError(t, err)

	records := []models.Record{
		{Source: "heat.json", Content: "title: Heat year: 1995 director: Michael Mann", Metadata: map[string]any{"title": "Heat"}},
		{Source: "ronin.json", Content: "title: Ronin", Metadata: map[string]any{"title": "Ronin"}},
	}
	stats, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.Written)
	assert.Equal(t, 2, e.calls)
	assert.Len(t, w1.got, 3)
	assert.Equal(t, w1.got, w2.got)
	assert.Equal(t, "title: Heat year: 1995 ", w1.got[0].Content)
	assert.Equal(t, "1995 director: Michael Mann", w1.got[1].Content)
	assert.Equal(t, "Ronin", w1.got[2].Metadata["title"])
	assert.Equal(t, "ronin.json", w1.got[2].Metadata[models.MetaSourceID])
}

func TestPipeline_RunEmpty(t *testing.T) {
	s, err := splitter.New(4, 1)
	require.NoError(t, err)
	e := &hashEmbedder{}
	store, err := chromemdb.NewStore("movies")
	require.NoError(t, err)
	p, err := New(s, e, 2, store)
	require.NoError(t, err)

	stats, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, 0, e.calls)
	assert.Equal(t, 0, store.Count())
}

func TestPipeline_RunErrorsAbort(t *testing.T) {
	s, err := splitter.New(4, 1)
	require.NoError(t, err)
	records := []models.Record{{Source: "heat.json", Content: "title: Heat", Metadata: map[string]any{}}}

	t.Run("embedder", func(t *testing.T) {
		boom := errors.New("model unavailable")
		w := &recordingWriter{}
		p, err := New(s, &hashEmbedder{err: boom}, 2, w)
		require.NoError(t, err)
		_, err = p.Run(context.Background(), records)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, w.got)
	})

	t.Run("writer", func(t *testing.T) {
		boom := errors.New("disk full")
		w1, w2 := &recordingWriter{err: boom}, &recordingWriter{}
		p, err := New(s, &hashEmbedder{}, 2, w1, w2)
		require.NoError(t, err)
		_, err = p.Run(context.Background(), records)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, w2.got)
	})
}

func TestIndexDirectory(t *testing.T) {
	ctx := context.Background()
	dir := writeMovies(t, map[string]string{
		"a.json":    `{"title":"A","plot":"a bank heist goes wrong"}`,
		"b.json":    `{"title":"B"}`,
		"notes.txt": "ignored",
	})
	out := filepath.Join(t.TempDir(), "moviedb")
	e := &hashEmbedder{}

	store, stats, err := IndexDirectory(ctx, testConfig(), dir, out, e)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, stats.Written, store.Count())

	loaded, m, err := chromemdb.Load(out, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEmbeddingModel, m.Model)
	assert.Equal(t, store.Count(), loaded.Count())

	docs, err := loaded.Documents(ctx)
	require.NoError(t, err)
	titles := map[string]bool{}
	for _, d := range docs {
		titles[d.Metadata["title"]] = true
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true}, titles)
}

func TestIndexDirectory_ReindexOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := writeMovies(t, map[string]string{"a.json": `{"title":"A","plot":"one two three four five six"}`})
	cfg := testConfig()
	e := &hashEmbedder{}

	store, stats, err := IndexDirectory(ctx, cfg, dir, "", e)
	require.NoError(t, err)
	require.Greater(t, stats.Written, 1)

	records, err := loader.LoadDirectory(dir)
	require.NoError(t, err)
	_, err = CreateDocumentStore(ctx, records, store, e, cfg, "")
	require.NoError(t, err)
	assert.Equal(t, stats.Written, store.Count())
}

func TestIndexDirectory_Empty(t *testing.T) {
	e := &hashEmbedder{}
	out := filepath.Join(t.TempDir(), "moviedb")

	store, stats, err := IndexDirectory(context.Background(), testConfig(), t.TempDir(), out, e)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Records)
	assert.Equal(t, 0, store.Count())
	assert.Equal(t, 0, e.calls)

	loaded, _, err := chromemdb.Load(out, "")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Count())
}

func TestIndexDirectory_InvalidJSONFailsBeforeEmbedding(t *testing.T) {
	dir := writeMovies(t, map[string]string{
		"a.json": `{"title":"A"}`,
		"b.json": `{"title":"B"`,
	})
	e := &hashEmbedder{}
	out := filepath.Join(t.TempDir(), "moviedb")

	_, _, err := IndexDirectory(context.Background(), testConfig(), dir, out, e)
	assert.ErrorIs(t, err, models.ErrFileFormat)
	assert.Equal(t, 0, e.calls)
	assert.NoDirExists(t, out)
}

func TestIndexDirectory_MissingDir(t *testing.T) {
	_, _, err := IndexDirectory(context.Background(), testConfig(), filepath.Join(t.TempDir(), "nope"), "", &hashEmbedder{})
	assert.ErrorIs(t, err, models.ErrIO)
}

func TestEmbedMovieDB_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Embedding.Device = "quantum"
	_, _, err := EmbedMovieDB(context.Background(), cfg, t.TempDir(), "")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
