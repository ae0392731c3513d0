package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"health-rag/internal/chromemdb"
	"health-rag/internal/config"
	"health-rag/internal/db"
	"health-rag/internal/embedding"
	"health-rag/internal/helper"
	"health-rag/internal/index"
	"health-rag/internal/llmservice"
	"health-rag/internal/models"
	"health-rag/internal/parser"
	"health-rag/internal/profile"
	"health-rag/internal/rag"
)

// providers are the remote model endpoints the app talks to.
type providers struct {
	chat     llms.Model
	embedder embeddings.Embedder
}

func newProviders(cfg *config.Config) (*providers, error) {
	chat, err := llmservice.NewModel(&cfg.ChatLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM, cfg.RAG.BatchSize)
	if err != nil {
		return nil, err
	}
	return &providers{chat: chat, embedder: embedder}, nil
}

type app struct {
	svc   *rag.Service
	index *index.Index
	close func() error
}

// loadChunks reads the configured source and splits it into chunks.
func loadChunks(ctx context.Context, cfg *config.Config) ([]models.Document, []models.Chunk, error) {
	docs, err := parser.Load(ctx, cfg.Source.Location)
	if err != nil {
		return nil, nil, err
	}
	chunks := parser.SplitDocuments(docs, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	log.Info().
		Str("source", cfg.Source.Location).
		Int("pages", len(docs)).
		Int("chunks", len(chunks)).
		Msg("Loaded source document")
	return docs, chunks, nil
}

// buildApp ingests the source into a fresh index and assembles the service.
func buildApp(ctx context.Context, cfg *config.Config, p *providers) (*app, error) {
	start := time.Now()

	docs, chunks, err := loadChunks(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chat := llmservice.NewClient(p.chat, &cfg.ChatLLM)

	opts := []index.Option{
		index.WithTimeout(cfg.EmbedLLM.Timeout),
		index.WithDimensions(cfg.EmbedLLM.Dimensions),
	}
	if cfg.RAG.Contextualize {
		opts = append(opts, index.WithContext(func(ctx context.Context, document, chunk string) (string, error) {
			return embedding.GenerateContext(ctx, chat, document, chunk)
		}, docs))
	}

	idx, err := index.Build(ctx, p.embedder, store, chunks, opts...)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	if err := export(cfg, store); err != nil {
		_ = closeStore()
		return nil, err
	}

	svc := rag.NewService(
		rag.NewClassifier(chat),
		rag.NewHealthChain(chat, idx, cfg.RAG.TopK),
		rag.NewGeneralChain(chat),
		profile.FileLoader{},
	)

	log.Info().
		Str("backend", cfg.RAG.Backend).
		Int("chunks", idx.Size()).
		Dur("took", time.Since(start)).
		Msg("Service ready")

	return &app{svc: svc, index: idx, close: closeStore}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (index.VectorStore, func() error, error) {
	switch cfg.RAG.Backend {
	case config.BackendPGVector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store, err := db.NewPGVectorStore(ctx, db.NewDB(sqldb, cfg.Database.Debug), cfg.EmbedLLM.Dimensions)
		if err != nil {
			_ = sqldb.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		if cfg.RAG.PersistDir != "" {
			if err := helper.CreateFolder(cfg.RAG.PersistDir); err != nil {
				return nil, nil, err
			}
		}
		m, err := chromemdb.NewVectorDBManager(cfg.RAG.PersistDir, cfg.RAG.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		if err := m.ResetCollection(cfg.RAG.CollectionName); err != nil {
			return nil, nil, err
		}
		return m, func() error { return nil }, nil
	}
}

func export(cfg *config.Config, store index.VectorStore) error {
	if cfg.RAG.ExportPath == "" {
		return nil
	}
	m, ok := store.(*chromemdb.VectorDBManager)
	if !ok {
		log.Warn().Str("backend", cfg.RAG.Backend).Msg("Export is only supported for the chromem backend, skipping")
		return nil
	}
	if err := helper.CreateFolder(filepath.Dir(cfg.RAG.ExportPath)); err != nil {
		return err
	}
	if err := m.Export(cfg.RAG.ExportPath); err != nil {
		return err
	}
	log.Info().Str("file", cfg.RAG.ExportPath).Msg("Exported index")
	return nil
}
