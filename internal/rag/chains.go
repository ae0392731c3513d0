package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"

	"health-rag/internal/llmservice"
	"health-rag/internal/models"
)

// Retriever returns the k chunks nearest to text.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error)
}

// HealthChain answers from retrieved document context and the user's data.
type HealthChain struct {
	llm       Generator
	retriever Retriever
	topK      int
	prompt    prompts.PromptTemplate
}

func NewHealthChain(llm Generator, retriever Retriever, topK int) *HealthChain {
	return &HealthChain{
		llm:       llm,
		retriever: retriever,
		topK:      topK,
		prompt:    llmservice.NewTemplate(models.HealthPromptTemplate, "context", "profile", "question"),
	}
}

func (h *HealthChain) Run(ctx context.Context, question, profileText string) (string, error) {
	chunks, err := h.retriever.Query(ctx, question, h.topK)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	log.Debug().Int("chunks", len(chunks)).Msg("Retrieved context")

	if strings.TrimSpace(profileText) == "" {
		profileText = models.NoProfileText
	}

	prompt, err := llmservice.Render(h.prompt, map[string]any{
		"context":  JoinContext(chunks),
		"profile":  profileText,
		"question": question,
	})
	if err != nil {
		return "", err
	}
	return h.llm.Generate(ctx, prompt)
}

// JoinContext concatenates chunk texts in retrieval order.
func JoinContext(chunks []models.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = strings.TrimSpace(c.Content)
	}
	return strings.Join(parts, models.ContextSeparator)
}

// GeneralChain sends the question to the model without retrieval.
type GeneralChain struct {
	llm    Generator
	prompt prompts.PromptTemplate
}

func NewGeneralChain(llm Generator) *GeneralChain {
	return &GeneralChain{
		llm:    llm,
		prompt: llmservice.NewTemplate(models.GeneralPromptTemplate, "question"),
	}
}

func (g *GeneralChain) Run(ctx context.Context, question string) (string, error) {
	prompt, err := llmservice.Render(g.prompt, map[string]any{"question": question})
	if err != nil {
		return "", err
	}
	return g.llm.Generate(ctx, prompt)
}
