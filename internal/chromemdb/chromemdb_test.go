package chromemdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-rag/internal/models"
)

func chunk(page, id int, content string, vec ...float32) models.ChunkEmbedding {
	return models.ChunkEmbedding{
		Chunk:     models.Chunk{Content: content, Source: "guide.pdf", PageNumber: page, ChunkID: id, Offset: id * 10},
		Embedding: vec,
	}
}

func newManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager("", "")
	require.NoError(t, err)
	require.NoError(t, m.ResetCollection("test"))
	return m
}

func TestSearch_OrderedAndBounded(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateDocs(ctx, []models.ChunkEmbedding{
		chunk(1, 1, "spinach", 1, 0, 0),
		chunk(1, 2, "kale", 0.8, 0.6, 0),
		chunk(2, 1, "taxes", 0, 0, 1),
	}))
	assert.Equal(t, 3, m.Count())

	res, err := m.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "spinach", res[0].Content)
	assert.Equal(t, "kale", res[1].Content)
	assert.GreaterOrEqual(t, res[0].Similarity, res[1].Similarity)

	// metadata survives the round trip
	assert.Equal(t, "guide.pdf", res[1].Source)
	assert.Equal(t, 1, res[1].PageNumber)
	assert.Equal(t, 2, res[1].ChunkID)
	assert.Equal(t, 20, res[1].Offset)
}

func TestSearch_KLargerThanCollection(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.CreateDocs(ctx, []models.ChunkEmbedding{chunk(1, 1, "only", 1, 0)}))

	res, err := m.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = m.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearch_EmptyCollection(t *testing.T) {
	m := newManager(t)
	res, err := m.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestNoCollection(t *testing.T) {
	m, err := NewVectorDBManager("", "")
	require.NoError(t, err)

	assert.Error(t, m.CreateDocs(context.Background(), nil))
	_, err = m.Search(context.Background(), []float32{1}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count())
	assert.Error(t, m.Export("x"))
}

func TestResetCollection_PersistentDB(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m, err := NewVectorDBManager(dir, "")
	require.NoError(t, err)
	require.NoError(t, m.ResetCollection("guide"))
	require.NoError(t, m.CreateDocs(ctx, []models.ChunkEmbedding{chunk(1, 1, "first run", 1, 0)}))

	again, err := NewVectorDBManager(dir, "")
	require.NoError(t, err)
	require.NoError(t, again.ResetCollection("guide"))
	assert.Equal(t, 0, again.Count())
}

func TestExport(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.CreateDocs(context.Background(), []models.ChunkEmbedding{chunk(1, 1, "beets", 0, 1)}))

	path := filepath.Join(t.TempDir(), "index.gob")
	require.NoError(t, m.Export(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCreateMetadata(t *testing.T) {
	c := chunk(3, 4, "x")
	c.Context = "Section on legumes"
	md := CreateMetadata(c)
	assert.Equal(t, map[string]string{
		"source":      "guide.pdf",
		"page_number": "3",
		"chunk_id":    "4",
		"offset":      "40",
		"context":     "Section on legumes",
	}, md)
}
