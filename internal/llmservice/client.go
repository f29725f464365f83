package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"movie-search/internal/config"
	"movie-search/internal/models"
)

// NewLLM creates a chat client for an OpenAI-compatible endpoint
func NewLLM(llmConfig *config.LLMConfig) (*openai.LLM, error) {
	if llmConfig.Model == "" {
		return nil, fmt.Errorf("%w: llm model is required", models.ErrConfiguration)
	}
	log.Debug().Str("base_url", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Creating LLM client")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing llm: %v", models.ErrConfiguration, err)
	}
	return llm, nil
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, tools []llms.Tool, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	var (
		res *llms.ContentResponse
		err error
	)
	if len(tools) > 0 {
		res, err = llm.GenerateContent(ctx, messages, llms.WithTools(tools))
	} else {
		res, err = llm.GenerateContent(ctx, messages)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}
	return res, nil
}
