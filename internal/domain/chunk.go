package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChunkClass separates compact numeric chunks from longer narrative ones.
type ChunkClass string

const (
	// ChunkMetric is a short, high-signal-density chunk carrying one metric.
	ChunkMetric ChunkClass = "metric"
	// ChunkNarrative is a longer chunk grouping a narrative section.
	ChunkNarrative ChunkClass = "narrative"
)

// Chunk is one unit of indexed text derived from a structured analysis.
type Chunk struct {
	ID        string
	Class     ChunkClass
	Text      string
	SourceKey string
	Ticker    string
	Vector    []float32
}

// ChunkID derives the deterministic chunk identifier. Re-indexing the same
// document yields identical IDs, so index writes are idempotent overwrites.
func ChunkID(sourceKey string, class ChunkClass, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", sourceKey, class, ordinal)))
	return hex.EncodeToString(sum[:16])
}
