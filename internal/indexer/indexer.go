// Package indexer runs movie records through the split, embed and write steps.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"movie-search/internal/chromemdb"
	"movie-search/internal/config"
	"movie-search/internal/embedding"
	"movie-search/internal/models"
	"movie-search/internal/splitter"
)

// Writer receives embedded chunks at the end of the pipeline
type Writer interface {
	WriteChunks(ctx context.Context, chunks []models.EmbeddedChunk) error
}

// Stats summarises one pipeline run
type Stats struct {
	Records  int
	Chunks   int
	Written  int
	Duration time.Duration
}

// Pipeline is a single linear pass: split, then embed, then write to every writer in order.
// There are no retries; the first error aborts the run and nothing already written is undone.
type Pipeline struct {
	splitter  splitter.WordSplitter
	embedder  embeddings.Embedder
	batchSize int
	writers   []Writer
}

// New builds a pipeline. The embedder is owned by the caller and used for this pipeline only.
func New(s splitter.WordSplitter, embedder embeddings.Embedder, batchSize int, writers ...Writer) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", models.ErrConfiguration)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", models.ErrConfiguration, batchSize)
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("%w: at least one writer is required", models.ErrConfiguration)
	}
	if _, err := splitter.New(s.Length, s.Overlap); err != nil {
		return nil, err
	}
	return &Pipeline{splitter: s, embedder: embedder, batchSize: batchSize, writers: writers}, nil
}

// Run indexes records. An empty record list leaves every writer untouched.
func (p *Pipeline) Run(ctx context.Context, records []models.Record) (Stats, error) {
	start := time.Now()
	stats := Stats{Records: len(records)}
	if len(records) == 0 {
		log.Info().Msg("No records to index")
		return stats, nil
	}

	chunks, err := p.splitter.Split(records)
	if err != nil {
		return stats, err
	}
	stats.Chunks = len(chunks)
	log.Info().Int("records", len(records)).Int("chunks", len(chunks)).Msg("Split records")

	log.Info().Int("batch_size", p.batchSize).Msg("Embedding chunks")
	embedded, err := embedding.EmbedChunks(ctx, p.embedder, chunks, p.batchSize)
	if err != nil {
		return stats, err
	}

	for _, w := range p.writers {
		if err := w.WriteChunks(ctx, embedded); err != nil {
			return stats, fmt.Errorf("failed to write chunks: %w", err)
		}
	}
	stats.Written = len(embedded)
	stats.Duration = time.Since(start)

	log.Info().Int("written", stats.Written).Dur("took", stats.Duration).Msg("Indexed records")
	return stats, nil
}

// CreateDocumentStore indexes records into store with the configured splitter and batch size,
// and saves the store when saveFile is not empty
func CreateDocumentStore(ctx context.Context, records []models.Record, store *chromemdb.Store, embedder embeddings.Embedder, cfg *config.Config, saveFile string, extra ...Writer) (Stats, error) {
	s, err := splitter.New(cfg.Splitter.Length, cfg.Splitter.Overlap)
	if err != nil {
		return Stats{}, err
	}
	writers := append([]Writer{store}, extra...)
	p, err := New(s, embedder, cfg.Embedding.BatchSize, writers...)
	if err != nil {
		return Stats{}, err
	}

	stats, err := p.Run(ctx, records)
	if err != nil {
		return stats, err
	}

	if saveFile != "" {
		err := chromemdb.Save(store, saveFile, chromemdb.SaveOptions{
			Compress:      cfg.Store.Compress,
			EncryptionKey: cfg.Store.EncryptionKey,
			Model:         cfg.Embedding.Model,
		})
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}
