package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"health-rag/internal/config"
	"health-rag/internal/llmservice"
	"health-rag/internal/models"
)

// NewEmbedder creates the embedder for the configured provider.
func NewEmbedder(cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case config.ProviderOpenAI:
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		client = llm
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// GenerateEmbedding embeds every chunk in one batched call. When contexts is
// non-nil, contexts[i] is prepended to chunk i before embedding.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, contexts []string) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if contexts != nil && len(contexts) != len(chunks) {
		return nil, fmt.Errorf("got %d contexts for %d chunks", len(contexts), len(chunks))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		if contexts != nil && contexts[i] != "" {
			texts[i] = contexts[i] + models.ContextSeparator + c.Content
		}
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	out := make([]models.ChunkEmbedding, len(chunks))
	for i, c := range chunks {
		out[i] = models.ChunkEmbedding{Chunk: c, Embedding: vectors[i]}
		if contexts != nil {
			out[i].Context = contexts[i]
		}
	}
	return out, nil
}

// GenerateContext asks the model for a short description situating chunk
// within document, used to enrich the chunk before embedding.
func GenerateContext(ctx context.Context, client *llmservice.Client, document, chunk string) (string, error) {
	prompt, err := llmservice.Render(contextPrompt, map[string]any{
		"document": document,
		"chunk":    chunk,
	})
	if err != nil {
		return "", err
	}
	return client.Generate(ctx, prompt, llms.WithMaxTokens(200))
}

var contextPrompt = llmservice.NewTemplate(models.ContextPromptTemplate, "document", "chunk")
