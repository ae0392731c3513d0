package models

// Document is one unit of text produced by the loader: a PDF page, a sheet,
// a web page or a whole text file.
type Document struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	PageNumber int    `json:"page_number"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	PageNumber int    `json:"page_number"`
	ChunkID    int    `json:"chunk_id"`
	Offset     int    `json:"offset"` // rune offset within the document
}

// ChunkEmbedding is a chunk together with the vector it is indexed under.
type ChunkEmbedding struct {
	Chunk
	Context   string    `json:"context,omitempty"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a retrieval hit; higher Similarity means nearer.
type ScoredChunk struct {
	Chunk
	Similarity float32 `json:"similarity"`
}
