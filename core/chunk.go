package core

// Chunk is a contiguous span of a source's token stream together with its
// decoded text. StartPosition and EndPosition are token offsets.
type Chunk struct {
	ChunkID       int    `json:"chunk_id"`
	Content       string `json:"content"`
	TokenCount    int    `json:"token_count"`
	StartPosition int    `json:"start_position"`
	EndPosition   int    `json:"end_position"`
}

// SearchResult is a chunk hit ranked within a single query.
type SearchResult struct {
	SourceKey     string  `json:"source_key"`
	Chunk         Chunk   `json:"chunk"`
	Score         float64 `json:"score"`
	RelevanceRank int     `json:"relevance_rank"`
}

// CollectionStats summarizes the collection for health reporting.
type CollectionStats struct {
	CollectionName string `json:"collection_name"`
	TotalEntities  int64  `json:"total_entities"`
}
