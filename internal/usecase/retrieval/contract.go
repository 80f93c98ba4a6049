// Package retrieval runs the hybrid query path: semantic KNN and lexical
// BM25 in parallel, fused by reciprocal rank into one evidence list.
package retrieval

import (
	"context"

	"github.com/finsight-ai/finsight/internal/domain"
)

// SemanticIndex searches the vector side of the hybrid engine.
type SemanticIndex interface {
	SearchKNN(ctx context.Context, vector []float32, k int, ticker string) ([]domain.ScoredChunk, error)
}

// LexicalIndex searches the keyword side of the hybrid engine.
type LexicalIndex interface {
	Search(query string, k int, ticker string) []domain.ScoredChunk
}

// ChunkLoader hydrates fused hits back into chunk records.
type ChunkLoader interface {
	Get(ctx context.Context, ids []string) ([]domain.Chunk, error)
}
