package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"movie-search/internal/chromemdb"
	"movie-search/internal/embedding"
	"movie-search/internal/llmservice"
	"movie-search/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// RAG answers questions over a loaded movie store. The llm may be nil when only Search is used.
type RAG struct {
	store    *chromemdb.Store
	embedder embeddings.Embedder
	llm      llms.Model
	topK     int
}

func NewRAG(store *chromemdb.Store, embedder embeddings.Embedder, llm llms.Model, topK int) *RAG {
	if topK < 1 {
		topK = 5
	}
	return &RAG{store: store, embedder: embedder, llm: llm, topK: topK}
}

// Search embeds the query and returns the k most similar chunks. where restricts results to
// chunks whose metadata matches every entry.
func (r *RAG) Search(ctx context.Context, query string, k int, where map[string]string) ([]models.SearchResult, error) {
	if k < 1 {
		k = r.topK
	}
	vec, err := embedding.EmbedQuery(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}
	results, err := r.store.Search(ctx, vec, k, where)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", query).Int("results", len(results)).Msg("Searched movies")
	return results, nil
}

// Ask retrieves the closest movies and has the llm answer the question from them
func (r *RAG) Ask(ctx context.Context, query string) (*models.PromptResponse, error) {
	if r.llm == nil {
		return nil, fmt.Errorf("%w: no llm configured", models.ErrConfiguration)
	}
	results, err := r.Search(ctx, query, r.topK, nil)
	if err != nil {
		return nil, err
	}

	var movies strings.Builder
	for i, res := range results {
		if i > 0 {
			movies.WriteString(models.ContextSeparator)
		}
		movies.WriteString(res.Content)
	}
	source := movies.String()

	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.MovieAnswerPromptTemplate, source, query)),
	}
	res, err := llmservice.GenerateContent(ctx, r.llm, nil, msgContent)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &models.PromptResponse{
		Query:   query,
		Source:  source,
		Content: CleanAnswer(res.Choices[0].Content),
	}, nil
}

// CleanAnswer strips reasoning blocks some models emit before the answer
func CleanAnswer(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
