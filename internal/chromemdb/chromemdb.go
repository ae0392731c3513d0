package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"health-rag/internal/models"
)

const (
	compress = false

	metaSource  = "source"
	metaPage    = "page_number"
	metaChunkID = "chunk_id"
	metaOffset  = "offset"
	metaContext = "context"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	encryptionKey string
}

// NewVectorDBManager opens a persistent database under dbPath, or an
// in-memory one when dbPath is empty.
func NewVectorDBManager(dbPath, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		encryptionKey: encryptionKey,
	}, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// ResetCollection drops any existing collection of that name and starts an
// empty one, so a persisted database never mixes two ingestions.
func (m *VectorDBManager) ResetCollection(collectionName string) error {
	if err := m.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection(collectionName)
	return err
}

// CreateDocs adds pre-embedded chunks to the collection.
func (m *VectorDBManager) CreateDocs(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:        fmt.Sprintf("p%d-c%d", c.PageNumber, c.ChunkID),
			Content:   c.Content,
			Metadata:  CreateMetadata(c),
			Embedding: c.Embedding,
		})
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns at most k chunks nearest to embedding, nearest first.
func (m *VectorDBManager) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if m.collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	// chromem rejects nResults larger than the collection
	k = min(k, m.collection.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		out = append(out, models.ScoredChunk{
			Chunk:      chunkFromResult(r),
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Count returns the number of documents in the collection.
func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// export to file
func (m *VectorDBManager) Export(filePath string) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if filePath == "" {
		return fmt.Errorf("export path is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", filePath).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")

	err := m.db.ExportToFile(filePath, compress, m.encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// CreateMetadata flattens chunk metadata into chromem's string map.
func CreateMetadata(c models.ChunkEmbedding) map[string]string {
	md := map[string]string{
		metaSource:  c.Source,
		metaPage:    strconv.Itoa(c.PageNumber),
		metaChunkID: strconv.Itoa(c.ChunkID),
		metaOffset:  strconv.Itoa(c.Offset),
	}
	if c.Context != "" {
		md[metaContext] = c.Context
	}
	return md
}

func chunkFromResult(r chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	chunkID, _ := strconv.Atoi(r.Metadata[metaChunkID])
	offset, _ := strconv.Atoi(r.Metadata[metaOffset])
	return models.Chunk{
		Content:    r.Content,
		Source:     r.Metadata[metaSource],
		PageNumber: page,
		ChunkID:    chunkID,
		Offset:     offset,
	}
}
