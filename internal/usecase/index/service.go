package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/bus"
	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
	"github.com/finsight-ai/finsight/internal/metrics"
)

const stageName = "indexing"

// Service implements the indexing stage.
type Service struct {
	embedder domain.Embedder
	chunks   chunkStore
	lexical  lexicalIndex
	state    stateStore
	bus      publisher
}

// NewService creates an indexing stage.
func NewService(embedder domain.Embedder, chunks chunkStore, lexical lexicalIndex, state stateStore, b publisher) *Service {
	return &Service{embedder: embedder, chunks: chunks, lexical: lexical, state: state, bus: b}
}

// HandleAnalysis indexes one analysis. Deterministic chunk IDs make the
// whole operation an idempotent overwrite, so a replayed filing re-indexes
// in place. Any embedding or index failure dead-letters the filing with
// reason indexing_failed; extraction work is never redone for that.
func (s *Service) HandleAnalysis(ctx context.Context, a *domain.Analysis) error {
	if err := a.Validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With(
		zap.String("source_key", a.SourceKey),
		zap.String("stage", stageName),
	)

	if err := s.state.Transition(ctx, a.SourceKey, domain.StatusAnalyzedNotIndexed); err != nil {
		return fmt.Errorf("transition %s: %w", a.SourceKey, err)
	}

	if err := s.indexChunks(ctx, a); err != nil {
		log.Warn("indexing failed", zap.Error(err))
		if dlErr := s.state.MarkDeadLetter(ctx, a.SourceKey, domain.ReasonIndexingFailed, err.Error()); dlErr != nil {
			return fmt.Errorf("dead-letter %s: %w", a.SourceKey, dlErr)
		}
		return nil
	}

	if err := s.state.Transition(ctx, a.SourceKey, domain.StatusIndexed); err != nil {
		return fmt.Errorf("transition %s: %w", a.SourceKey, err)
	}
	s.bus.Publish(bus.TopicIndexCompleted, stageName, a.SourceKey)
	return nil
}

func (s *Service) indexChunks(ctx context.Context, a *domain.Analysis) error {
	chunks := BuildChunks(a)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: analysis yielded no chunks", domain.ErrInvalidPayload)
	}

	for i := range chunks {
		res, err := s.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Vector = res.Embedding
	}

	if err := s.chunks.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	if err := s.RebuildLexical(ctx); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("filing indexed",
		zap.String("source_key", a.SourceKey),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// RebuildLexical reloads every durable chunk record and swaps in a fresh
// keyword index snapshot. Called after each index write and once on startup.
func (s *Service) RebuildLexical(ctx context.Context) error {
	all, err := s.chunks.All(ctx)
	if err != nil {
		return fmt.Errorf("load chunks for lexical rebuild: %w", err)
	}
	s.lexical.Rebuild(all)
	metrics.LexicalIndexSize.Set(float64(len(all)))
	return nil
}
