package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"movie-search/internal/models"
)

var errNoTextEmbedding = errors.New("movie store has no text embedder, query with a vector")

// noTextEmbedding stops chromem-go from falling back to its default OpenAI embedder
func noTextEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoTextEmbedding
}

// Store is the in-memory document store holding embedded movie chunks.
// It tracks ids in write order so the whole collection can be listed and persisted.
// chromem-go normalizes vectors on write, so Documents and saved stores hold unit-length
// embeddings rather than the embedder's raw output. Cosine similarity is unaffected.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	ids        []string
	seen       map[string]struct{}
	dim        int
}

// NewStore creates an empty store with a single collection
func NewStore(collectionName string) (*Store, error) {
	if collectionName == "" {
		return nil, fmt.Errorf("%w: collection name is required", models.ErrConfiguration)
	}
	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(collectionName, nil, noTextEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &Store{
		db:         db,
		collection: c,
		seen:       make(map[string]struct{}),
	}, nil
}

// Name returns the collection name
func (s *Store) Name() string {
	return s.collection.Name
}

// Count returns the number of stored chunks
func (s *Store) Count() int {
	return s.collection.Count()
}

// Dimension returns the vector length of stored chunks, 0 while empty
func (s *Store) Dimension() int {
	return s.dim
}

// IDs returns chunk ids in the order they were first written
func (s *Store) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// WriteChunks adds embedded chunks. A chunk whose id is already stored is overwritten.
func (s *Store) WriteChunks(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := s.dim
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk without id")
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %s has dimension %d, store expects %d", c.ID, len(c.Embedding), dim)
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: c.Embedding,
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	s.dim = dim
	for _, d := range docs {
		if _, ok := s.seen[d.ID]; ok {
			continue
		}
		s.seen[d.ID] = struct{}{}
		s.ids = append(s.ids, d.ID)
	}
	log.Debug().Str("collection", s.Name()).Int("added", len(docs)).Int("total", s.Count()).Msg("Wrote chunks")
	return nil
}

// Documents returns every stored chunk in write order
func (s *Store) Documents(ctx context.Context) ([]models.EmbeddedChunk, error) {
	out := make([]models.EmbeddedChunk, 0, len(s.ids))
	for _, id := range s.ids {
		doc, err := s.collection.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get document %s: %w", id, err)
		}
		out = append(out, models.EmbeddedChunk{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		})
	}
	return out, nil
}

// Search returns up to k chunks most similar to the query vector, optionally restricted to
// chunks whose metadata matches every entry of where
func (s *Store) Search(ctx context.Context, query []float32, k int, where map[string]string) ([]models.SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: result count must be positive, got %d", models.ErrConfiguration, k)
	}
	if s.dim != 0 && len(query) != s.dim {
		return nil, fmt.Errorf("query has dimension %d, store expects %d", len(query), s.dim)
	}
	k = min(k, s.Count())
	if k == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{
			EmbeddedChunk: models.EmbeddedChunk{
				ID:        r.ID,
				Content:   r.Content,
				Metadata:  r.Metadata,
				Embedding: r.Embedding,
			},
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Reset drops every stored chunk
func (s *Store) Reset() error {
	name := s.Name()
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	c, err := s.db.GetOrCreateCollection(name, nil, noTextEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	s.collection = c
	s.ids = nil
	s.seen = make(map[string]struct{})
	s.dim = 0
	return nil
}
