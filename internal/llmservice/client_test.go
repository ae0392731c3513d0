package llmservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"health-rag/internal/config"
	"health-rag/internal/llmservice"
	"health-rag/internal/testutil"
)

func TestClient_Generate(t *testing.T) {
	fake := testutil.NewFakeLLM("<think>the user wants veg</think>\n  Eat spinach.  ")
	c := llmservice.NewClient(fake, &config.LLMConfig{Timeout: time.Second})

	out, err := c.Generate(context.Background(), "What should I eat?")
	require.NoError(t, err)
	assert.Equal(t, "Eat spinach.", out)
	assert.Equal(t, "What should I eat?", fake.LastPrompt())
}

func TestClient_GenerateError(t *testing.T) {
	fake := &testutil.FakeLLM{Respond: func(string) (string, error) { return "", testutil.ErrFake }}
	c := llmservice.NewClient(fake, &config.LLMConfig{})

	_, err := c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, testutil.ErrFake)
}

func TestClient_TimeoutCancelsCall(t *testing.T) {
	blocking := &blockingLLM{}
	c := llmservice.NewClient(blocking, &config.LLMConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := c.Generate(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_EmptyChoices(t *testing.T) {
	c := llmservice.NewClient(emptyLLM{}, &config.LLMConfig{})
	_, err := c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, llmservice.ErrEmptyResponse)
}

func TestRender(t *testing.T) {
	tpl := llmservice.NewTemplate("Q: {{.question}} ({{.n}})", "question", "n")
	out, err := llmservice.Render(tpl, map[string]any{"question": "kale?", "n": 2})
	require.NoError(t, err)
	assert.Equal(t, "Q: kale? (2)", out)
}

func TestStripThinking(t *testing.T) {
	assert.Equal(t, "health", llmservice.StripThinking("<think>\nhmm\n</think>health"))
	assert.Equal(t, "general", llmservice.StripThinking(" general \n"))
}

type blockingLLM struct{}

func (blockingLLM) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, b, prompt, options...)
}

type emptyLLM struct{}

func (emptyLLM) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (e emptyLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, e, prompt, options...)
}
