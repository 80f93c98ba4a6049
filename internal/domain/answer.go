package domain

// Coverage is the retrieval engine's self-assessment of whether the fused
// context is sufficient to answer a question.
type Coverage string

const (
	// CoverageSufficient means the fused set clears the relevance floor broadly.
	CoverageSufficient Coverage = "sufficient"
	// CoveragePartial means some, but not most, context cleared the floor.
	CoveragePartial Coverage = "partial"
	// CoverageInsufficient means no usable context; the answer is a hard gate,
	// not a fabrication.
	CoverageInsufficient Coverage = "insufficient"
)

// ScoredChunk is one candidate from a single retrieval list, scored on that
// list's own scale.
type ScoredChunk struct {
	ChunkID string
	Score   float64
}

// FusedHit is one entry of the fused relevance ordering.
type FusedHit struct {
	ChunkID    string
	FusedScore float64
	Rank       int
	// SemanticRank and LexicalRank are the 1-based positions in each source
	// list; 0 means the chunk was absent from that list.
	SemanticRank int
	LexicalRank  int
}

// InBothLists reports whether the chunk appeared in both retrieval lists.
func (h *FusedHit) InBothLists() bool {
	return h.SemanticRank > 0 && h.LexicalRank > 0
}

// Evidence pairs a fused hit with the chunk it points at, in fused order.
type Evidence struct {
	Hit   FusedHit
	Chunk Chunk
}

// Answer is a grounded, citation-bearing response to a user question.
type Answer struct {
	Question  string   `json:"question"`
	Text      string   `json:"answer"`
	Citations []string `json:"citations"`
	Coverage  Coverage `json:"coverage"`
}
