package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
)

// Tracer receives the full fused ordering for each query. It is an
// optional capability resolved once at startup; when tracing is off the
// call sites go through nopTracer instead of checking a flag.
type Tracer interface {
	TraceFusion(ctx context.Context, question string, semantic, lexical []domain.ScoredChunk, fused []domain.FusedHit)
}

type nopTracer struct{}

func (nopTracer) TraceFusion(context.Context, string, []domain.ScoredChunk, []domain.ScoredChunk, []domain.FusedHit) {
}

// logTracer emits one debug line per fused hit, enough to reconstruct why
// a citation ranked where it did.
type logTracer struct{}

// NewLogTracer returns a Tracer that writes fusion detail to the
// context logger at debug level.
func NewLogTracer() Tracer {
	return logTracer{}
}

func (logTracer) TraceFusion(ctx context.Context, question string, semantic, lexical []domain.ScoredChunk, fused []domain.FusedHit) {
	log := logger.FromContext(ctx)
	for _, h := range fused {
		log.Debug("fusion trace",
			zap.String("question", question),
			zap.String("chunk_id", h.ChunkID),
			zap.Float64("fused_score", h.FusedScore),
			zap.Int("rank", h.Rank),
			zap.Int("semantic_rank", h.SemanticRank),
			zap.Int("lexical_rank", h.LexicalRank),
		)
	}
}
