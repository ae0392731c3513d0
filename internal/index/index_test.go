package index_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-rag/internal/chromemdb"
	"health-rag/internal/index"
	"health-rag/internal/models"
	"health-rag/internal/parser"
	"health-rag/internal/testutil"
)

var guide = []models.Document{
	{Source: "guide.pdf", PageNumber: 1, Content: "Leafy green vegetables such as spinach and kale are rich in iron and folate. "},
	{Source: "guide.pdf", PageNumber: 2, Content: "Whole grains like oats and brown rice provide fibre that supports digestion. "},
	{Source: "guide.pdf", PageNumber: 3, Content: "Regular exercise and sleep improve blood pressure and heart health. "},
	{Source: "guide.pdf", PageNumber: 4, Content: "   "},
}

func newStore(t *testing.T) *chromemdb.VectorDBManager {
	t.Helper()
	m, err := chromemdb.NewVectorDBManager("", "")
	require.NoError(t, err)
	require.NoError(t, m.ResetCollection("guide"))
	return m
}

func build(t *testing.T, opts ...index.Option) (*index.Index, *testutil.HashEmbedder) {
	t.Helper()
	emb := testutil.NewHashEmbedder()
	chunks := parser.SplitDocuments(guide, 1000, 100)
	idx, err := index.Build(context.Background(), emb, newStore(t), chunks, opts...)
	require.NoError(t, err)
	return idx, emb
}

func TestBuild_SkipsBlankChunks(t *testing.T) {
	idx, emb := build(t)
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, 3, emb.Calls())
}

func TestQuery_BoundedAndOrdered(t *testing.T) {
	idx, _ := build(t)
	ctx := context.Background()

	for k := 0; k <= 5; k++ {
		res, err := idx.Query(ctx, "Which vegetables are rich in iron?", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res), k)
		for i := 1; i < len(res); i++ {
			assert.GreaterOrEqual(t, res[i-1].Similarity, res[i].Similarity)
		}
	}

	res, err := idx.Query(ctx, "Which vegetables are rich in iron?", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Content, "spinach")
	assert.Equal(t, 1, res[0].PageNumber)
}

func TestQuery_RetrievalIsRepeatable(t *testing.T) {
	idx, _ := build(t)
	ctx := context.Background()

	first, err := idx.Query(ctx, "fibre and digestion", 2)
	require.NoError(t, err)
	second, err := idx.Query(ctx, "fibre and digestion", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQuery_EmbedFailure(t *testing.T) {
	idx, emb := build(t)
	emb.Fail = true
	_, err := idx.Query(context.Background(), "anything", 2)
	assert.ErrorIs(t, err, testutil.ErrFake)
}

func TestBuild_EmbedFailureIsFatal(t *testing.T) {
	emb := testutil.NewHashEmbedder()
	emb.Fail = true
	_, err := index.Build(context.Background(), emb, newStore(t), parser.SplitDocuments(guide, 1000, 0))
	assert.ErrorIs(t, err, testutil.ErrFake)
}

func TestBuild_EmptyIndex(t *testing.T) {
	idx, err := index.Build(context.Background(), testutil.NewHashEmbedder(), newStore(t), nil)
	require.NoError(t, err)
	res, err := idx.Query(context.Background(), "kale", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBuild_WithContext(t *testing.T) {
	var seen []string
	fn := func(_ context.Context, document, chunk string) (string, error) {
		seen = append(seen, document)
		return "From the healthy eating guide", nil
	}
	idx, _ := build(t, index.WithContext(fn, guide))
	assert.Equal(t, 3, idx.Size())
	require.Len(t, seen, 3)
	assert.True(t, strings.HasPrefix(seen[0], "Leafy green"))

	res, err := idx.Query(context.Background(), "oats brown rice", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	// the stored content is the raw chunk, not the enriched text
	assert.True(t, strings.HasPrefix(res[0].Content, "Whole grains"))
}

func TestBuild_ContextFailure(t *testing.T) {
	fn := func(context.Context, string, string) (string, error) { return "", testutil.ErrFake }
	emb := testutil.NewHashEmbedder()
	_, err := index.Build(context.Background(), emb, newStore(t), parser.SplitDocuments(guide, 1000, 0), index.WithContext(fn, guide))
	assert.ErrorIs(t, err, testutil.ErrFake)
}

func TestBuild_EmbedTimeout(t *testing.T) {
	emb := testutil.NewHashEmbedder()
	emb.Block = true
	start := time.Now()
	_, err := index.Build(context.Background(), emb, newStore(t), parser.SplitDocuments(guide, 1000, 0), index.WithTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestQuery_EmbedTimeout(t *testing.T) {
	idx, emb := build(t, index.WithTimeout(20*time.Millisecond))
	emb.Block = true
	_, err := idx.Query(context.Background(), "kale", 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuery_NoTimeoutKeepsCallerContext(t *testing.T) {
	idx, emb := build(t)
	emb.Block = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Query(ctx, "kale", 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_DimensionMismatch(t *testing.T) {
	_, err := index.Build(context.Background(), testutil.NewHashEmbedder(), newStore(t), parser.SplitDocuments(guide, 1000, 0), index.WithDimensions(32))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "64 dimensions, configured 32")

	idx, _ := build(t, index.WithDimensions(64))
	assert.Equal(t, 3, idx.Size())
}
