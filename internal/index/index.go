// Package index builds the read-only embedding index the service retrieves
// from. An Index is filled once by Build and exposes only Query afterwards.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"health-rag/internal/embedding"
	"health-rag/internal/models"
)

// VectorStore is the storage backend behind an Index.
type VectorStore interface {
	CreateDocs(ctx context.Context, chunks []models.ChunkEmbedding) error
	Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error)
}

// ContextFunc produces a short description situating chunk within document.
type ContextFunc func(ctx context.Context, document, chunk string) (string, error)

type options struct {
	contextFn  ContextFunc
	documents  []models.Document
	timeout    time.Duration
	dimensions int
}

type Option func(*options)

// WithContext enriches every chunk with fn's output before embedding. docs
// must be the documents the chunks were cut from.
func WithContext(fn ContextFunc, docs []models.Document) Option {
	return func(o *options) {
		o.contextFn = fn
		o.documents = docs
	}
}

// WithTimeout bounds every call to the embedder, at build time and per query.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithDimensions makes Build reject vectors that are not n long.
func WithDimensions(n int) Option {
	return func(o *options) {
		o.dimensions = n
	}
}

type Index struct {
	embedder embeddings.Embedder
	store    VectorStore
	size     int
	timeout  time.Duration
}

// Build embeds the non-blank chunks and writes them to store.
func Build(ctx context.Context, embedder embeddings.Embedder, store VectorStore, chunks []models.Chunk, opts ...Option) (*Index, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	kept := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			kept = append(kept, c)
		}
	}

	start := time.Now()
	var contexts []string
	if o.contextFn != nil {
		var err error
		contexts, err = situate(ctx, o.contextFn, o.documents, kept)
		if err != nil {
			return nil, err
		}
	}

	embedCtx, cancel := withTimeout(ctx, o.timeout)
	chunkEmbeddings, err := embedding.GenerateEmbedding(embedCtx, embedder, kept, contexts)
	cancel()
	if err != nil {
		return nil, err
	}
	if o.dimensions > 0 {
		for _, ce := range chunkEmbeddings {
			if len(ce.Embedding) != o.dimensions {
				return nil, fmt.Errorf("embedder returned %d dimensions, configured %d", len(ce.Embedding), o.dimensions)
			}
		}
	}
	if len(chunkEmbeddings) > 0 {
		if err := store.CreateDocs(ctx, chunkEmbeddings); err != nil {
			return nil, fmt.Errorf("failed to write index: %w", err)
		}
	}

	log.Info().
		Int("chunks", len(kept)).
		Int("skipped", len(chunks)-len(kept)).
		Dur("took", time.Since(start)).
		Msg("Built embedding index")

	return &Index{embedder: embedder, store: store, size: len(kept), timeout: o.timeout}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func situate(ctx context.Context, fn ContextFunc, docs []models.Document, chunks []models.Chunk) ([]string, error) {
	type pageKey struct {
		source string
		page   int
	}
	byPage := make(map[pageKey]string, len(docs))
	for _, d := range docs {
		byPage[pageKey{d.Source, d.PageNumber}] = d.Content
	}

	contexts := make([]string, len(chunks))
	for i, c := range chunks {
		doc, ok := byPage[pageKey{c.Source, c.PageNumber}]
		if !ok {
			return nil, fmt.Errorf("no document for chunk %d of page %d", c.ChunkID, c.PageNumber)
		}
		s, err := fn(ctx, doc, c.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to generate context for chunk %d of page %d: %w", c.ChunkID, c.PageNumber, err)
		}
		contexts[i] = s
	}
	return contexts, nil
}

// Query returns at most k chunks nearest to text, nearest first.
func (i *Index) Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 || i.size == 0 {
		return nil, nil
	}
	embedCtx, cancel := withTimeout(ctx, i.timeout)
	vec, err := i.embedder.EmbedQuery(embedCtx, text)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	res, err := i.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

// Size is the number of indexed chunks.
func (i *Index) Size() int {
	return i.size
}
