package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"health-rag/internal/config"
	"health-rag/internal/models"
)

type Document struct {
	bun.BaseModel  `bun:"table:documents,alias:d"`
	ID             int64           `bun:"id,pk,autoincrement"`
	Content        string          `bun:"content,notnull"`
	Context        string          `bun:"context"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	SourceFilename string          `bun:"source_filename"`
	PageNumber     int             `bun:"page_number"`
	ChunkID        int             `bun:"chunk_id"`
	Offset         int             `bun:"chunk_offset"`
	Distance       float64         `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver: bun's
// pgdriver by default, lib/pq when driver is "pq".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPG, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// InitDB enables pgvector and creates the documents table. Every stored
// embedding must have vectorSize dimensions.
func InitDB(ctx context.Context, db *bun.DB, vectorSize int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().
		Model((*Document)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE documents ALTER COLUMN embedding TYPE vector(%d)", vectorSize))
	if err != nil {
		return fmt.Errorf("failed to size embedding column: %w", err)
	}
	return nil
}

// drop table documents
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

func StoreDocuments(ctx context.Context, db *bun.DB, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&docs).Exec(ctx)
	return err
}

// SearchDocuments orders by cosine distance, nearest first.
func SearchDocuments(ctx context.Context, db *bun.DB, queryEmbedding []float32, limit int) ([]Document, error) {
	var docs []Document
	err := db.NewSelect().
		Model(&docs).
		Column("id", "content", "context", "source_filename", "page_number", "chunk_id", "chunk_offset").
		ColumnExpr("d.embedding <=> ? AS distance", pgvector.NewVector(queryEmbedding)).
		OrderExpr("distance ASC, d.id ASC").
		Limit(limit).
		Scan(ctx)
	return docs, err
}

// PGVectorStore serves the documents table as the index's vector store.
type PGVectorStore struct {
	db *bun.DB
}

// NewPGVectorStore recreates the documents table so the store starts empty.
func NewPGVectorStore(ctx context.Context, db *bun.DB, vectorSize int) (*PGVectorStore, error) {
	if err := DropDocuments(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to clear documents: %w", err)
	}
	if err := InitDB(ctx, db, vectorSize); err != nil {
		return nil, err
	}
	return &PGVectorStore{db: db}, nil
}

func (s *PGVectorStore) CreateDocs(ctx context.Context, chunks []models.ChunkEmbedding) error {
	docs := make([]Document, len(chunks))
	for i, ce := range chunks {
		docs[i] = Document{
			Content:        ce.Content,
			Context:        ce.Context,
			Embedding:      pgvector.NewVector(ce.Embedding),
			SourceFilename: ce.Source,
			PageNumber:     ce.PageNumber,
			ChunkID:        ce.ChunkID,
			Offset:         ce.Offset,
		}
	}
	if err := StoreDocuments(ctx, s.db, docs); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	docs, err := SearchDocuments(ctx, s.db, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	out := make([]models.ScoredChunk, len(docs))
	for i, d := range docs {
		out[i] = models.ScoredChunk{
			Chunk: models.Chunk{
				Content:    d.Content,
				Source:     d.SourceFilename,
				PageNumber: d.PageNumber,
				ChunkID:    d.ChunkID,
				Offset:     d.Offset,
			},
			Similarity: float32(1 - d.Distance),
		}
	}
	return out, nil
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
