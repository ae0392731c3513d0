package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"

	"health-rag/internal/config"
	"health-rag/internal/models"
)

var (
	ErrEmptyResponse = errors.New("model returned no choices")

	thinkRe = regexp.MustCompile(models.ThinkTag)
)

// Client wraps a langchaingo model with the call options and timeout
// configured for it. It is safe for concurrent use.
type Client struct {
	llm     llms.Model
	opts    []llms.CallOption
	timeout time.Duration
}

// NewModel creates the chat model for the configured provider.
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating chat model")
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
}

// NewClient wraps llm with the sampling settings and timeout from llmConfig.
func NewClient(llm llms.Model, llmConfig *config.LLMConfig) *Client {
	var opts []llms.CallOption
	opts = append(opts, llms.WithTemperature(llmConfig.Temperature))
	if llmConfig.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(llmConfig.MaxTokens))
	}
	return &Client{llm: llm, opts: opts, timeout: llmConfig.Timeout}
}

// GenerateContent sends messages to the model, bounded by the client timeout.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts := append(append([]llms.CallOption{}, c.opts...), options...)
	return c.llm.GenerateContent(ctx, messages, opts...)
}

// Generate sends a single human prompt and returns the completion text with
// any <think> block removed.
func (c *Client) Generate(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	res, err := c.GenerateContent(ctx, msgContent, options...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	log.Debug().Dur("took", time.Since(start)).Int("prompt_len", len(prompt)).Msg("Model call finished")

	return StripThinking(res.Choices[0].Content), nil
}

// StripThinking removes reasoning blocks emitted by some models.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// NewTemplate builds a Go text/template prompt with the given input variables.
func NewTemplate(template string, inputVars ...string) prompts.PromptTemplate {
	return prompts.NewPromptTemplate(template, inputVars)
}

// Render formats t with values.
func Render(t prompts.PromptTemplate, values map[string]any) (string, error) {
	s, err := t.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return s, nil
}
