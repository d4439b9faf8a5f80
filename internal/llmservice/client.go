package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/prajwalprabhu/File-Chat/internal/config"
	"github.com/prajwalprabhu/File-Chat/internal/models"
)

var ErrGenerationProvider = errors.New("generation provider failed")

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// NewModel creates the chat model described by llmConfig.
func NewModel(llmConfig config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("base_url", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Creating chat model")

	switch llmConfig.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		return ollama.New(opts...)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", llmConfig.Provider)
	}
}

// GenerateContent sends prompt as a single human message and returns the
// first choice. There is no retry; any failure is an ErrGenerationProvider.
func GenerateContent(ctx context.Context, llm llms.Model, prompt string, options ...llms.CallOption) (string, error) {
	msgContent := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	res, err := llm.GenerateContent(ctx, msgContent, options...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationProvider, err)
	}
	if res == nil || len(res.Choices) == 0 || res.Choices[0] == nil {
		return "", fmt.Errorf("%w: empty response", ErrGenerationProvider)
	}
	return res.Choices[0].Content, nil
}

// StripThinking removes <think> blocks some reasoning models prepend.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(s, ""))
}
