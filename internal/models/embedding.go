package models

// Record is one movie as loaded from a single metadata file
type Record struct {
	Source   string
	Content  string
	Metadata map[string]any
}

// Chunk represents a word window of a record's content with inherited metadata
type Chunk struct {
	Content       string
	SourceID      string
	SplitID       int
	SplitIdxStart int
	Metadata      map[string]any
}

// EmbeddedChunk is a chunk together with its vector, as written to the store
type EmbeddedChunk struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// SearchResult is a stored chunk matched by a similarity query
type SearchResult struct {
	EmbeddedChunk
	Similarity float32
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
