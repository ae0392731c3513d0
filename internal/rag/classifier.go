package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"health-rag/internal/llmservice"
	"health-rag/internal/models"
)

// Generator produces a completion for a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// Classifier labels a question as health or general with one model call.
type Classifier struct {
	llm    Generator
	prompt prompts.PromptTemplate
}

func NewClassifier(llm Generator) *Classifier {
	return &Classifier{
		llm:    llm,
		prompt: llmservice.NewTemplate(models.ClassifierPromptTemplate, "question"),
	}
}

// Classify never fails: any answer other than "health", and any error,
// routes the question to the general chain.
func (c *Classifier) Classify(ctx context.Context, question string) models.Category {
	prompt, err := llmservice.Render(c.prompt, map[string]any{"question": question})
	if err != nil {
		log.Warn().Err(err).Msg("Classifier prompt failed, routing to general")
		return models.CategoryGeneral
	}

	out, err := c.llm.Generate(ctx, prompt, llms.WithMaxTokens(16))
	if err != nil {
		log.Warn().Err(err).Msg("Classifier call failed, routing to general")
		return models.CategoryGeneral
	}

	label := normalizeLabel(out)
	if label == string(models.CategoryHealth) {
		return models.CategoryHealth
	}
	if label != string(models.CategoryGeneral) {
		log.Warn().Str("label", out).Msg("Unrecognised classifier label, routing to general")
	}
	return models.CategoryGeneral
}

func normalizeLabel(s string) string {
	s = strings.ToLower(llmservice.StripThinking(s))
	s = strings.TrimPrefix(s, "category:")
	return strings.Trim(s, " \t\r\n\"'`*.,:;!?")
}
