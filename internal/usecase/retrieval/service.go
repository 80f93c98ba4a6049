package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
	"github.com/finsight-ai/finsight/internal/metrics"
)

// Options bound the candidate lists and the fused result.
type Options struct {
	// TopK is how many candidates each list contributes before fusion.
	TopK int
	// TopN is how many fused hits survive truncation.
	TopN int
}

// DefaultOptions are used for zero-valued fields.
var DefaultOptions = Options{TopK: 20, TopN: 8}

// Service answers retrieval queries against both indexes.
type Service struct {
	embedder domain.Embedder
	semantic SemanticIndex
	lexical  LexicalIndex
	chunks   ChunkLoader
	tracer   Tracer
	opts     Options
}

// NewService creates a retrieval service.
func NewService(embedder domain.Embedder, semantic SemanticIndex, lexical LexicalIndex, chunks ChunkLoader, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions.TopK
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultOptions.TopN
	}
	return &Service{
		embedder: embedder,
		semantic: semantic,
		lexical:  lexical,
		chunks:   chunks,
		tracer:   nopTracer{},
		opts:     opts,
	}
}

// WithTracer installs an optional fusion tracer. Resolved once at startup;
// the default is a no-op.
func (s *Service) WithTracer(t Tracer) *Service {
	if t != nil {
		s.tracer = t
	}
	return s
}

// Retrieve runs both retrieval lists for the question, fuses them, and
// returns the top fused hits hydrated with their chunk text. ticker, when
// non-empty, pre-filters both lists.
//
// The query path never touches filing state; an ingestion cycle running
// concurrently cannot block a question.
func (s *Service) Retrieve(ctx context.Context, question, ticker string) ([]domain.Evidence, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidPayload)
	}
	log := logger.FromContext(ctx)

	// The lexical list is computed while the embedding round trip is in
	// flight; it is in-memory and cannot fail.
	lexDone := make(chan []domain.ScoredChunk, 1)
	go func() {
		lexStart := time.Now()
		hits := s.lexical.Search(question, s.opts.TopK, ticker)
		metrics.RetrievalDuration.WithLabelValues("lexical").Observe(time.Since(lexStart).Seconds())
		lexDone <- hits
	}()

	semStart := time.Now()
	emb, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	semHits, err := s.semantic.SearchKNN(ctx, emb.Embedding, s.opts.TopK, ticker)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	metrics.RetrievalDuration.WithLabelValues("semantic").Observe(time.Since(semStart).Seconds())
	lexHits := <-lexDone

	fused := fuseRRF(semHits, lexHits)
	s.tracer.TraceFusion(ctx, question, semHits, lexHits, fused)
	if len(fused) > s.opts.TopN {
		fused = fused[:s.opts.TopN]
	}
	log.Debug("retrieval lists fused",
		zap.Int("semantic", len(semHits)),
		zap.Int("lexical", len(lexHits)),
		zap.Int("fused", len(fused)),
	)

	ids := make([]string, len(fused))
	for i := range fused {
		ids[i] = fused[i].ChunkID
	}
	loaded, err := s.chunks.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate chunks: %w", err)
	}
	byID := make(map[string]domain.Chunk, len(loaded))
	for _, c := range loaded {
		byID[c.ID] = c
	}

	evidence := make([]domain.Evidence, 0, len(fused))
	for _, hit := range fused {
		c, ok := byID[hit.ChunkID]
		if !ok {
			// The hit points at a record deleted between search and
			// hydration. Drop it rather than citing a ghost.
			log.Warn("fused hit has no chunk record", zap.String("chunk_id", hit.ChunkID))
			continue
		}
		evidence = append(evidence, domain.Evidence{Hit: hit, Chunk: c})
	}
	return evidence, nil
}
