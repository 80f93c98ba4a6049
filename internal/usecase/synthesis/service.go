package synthesis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
	"github.com/finsight-ai/finsight/internal/metrics"
)

// DefaultRelevanceFloor is the minimum fused score for a hit to count as
// usable context. A lone top-ranked hit from a single list scores 1/61, so
// the default floor sits just under that.
const DefaultRelevanceFloor = 0.016

// lowCoverageAnswer is returned verbatim when the floor gate trips.
const lowCoverageAnswer = "The indexed filings do not contain enough relevant information to answer this question."

// Service implements the answer path.
type Service struct {
	retriever Retriever
	generator Generator
	floor     float64
}

// NewService creates a synthesis service. floor <= 0 selects the default.
func NewService(retriever Retriever, generator Generator, floor float64) *Service {
	if floor <= 0 {
		floor = DefaultRelevanceFloor
	}
	return &Service{retriever: retriever, generator: generator, floor: floor}
}

// Answer retrieves evidence for the question and synthesizes a cited answer.
// When no evidence clears the relevance floor the generator is never called;
// the low-coverage response is a gate, not a hint.
func (s *Service) Answer(ctx context.Context, question, ticker string) (domain.Answer, error) {
	log := logger.FromContext(ctx)

	evidence, err := s.retriever.Retrieve(ctx, question, ticker)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("retrieve evidence: %w", err)
	}

	usable := 0
	for i := range evidence {
		if evidence[i].Hit.FusedScore >= s.floor {
			usable++
		}
	}
	if len(evidence) == 0 || usable == 0 {
		log.Info("low coverage gate tripped",
			zap.String("question", question),
			zap.Int("evidence", len(evidence)),
		)
		metrics.AnswersTotal.WithLabelValues(string(domain.CoverageInsufficient)).Inc()
		return domain.Answer{
			Question:  question,
			Text:      lowCoverageAnswer,
			Citations: []string{},
			Coverage:  domain.CoverageInsufficient,
		}, nil
	}

	text, err := s.generator.Generate(ctx, question, assembleContext(evidence))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	coverage := domain.CoveragePartial
	if usable*2 >= len(evidence) {
		coverage = domain.CoverageSufficient
	}

	citations := make([]string, len(evidence))
	for i := range evidence {
		citations[i] = citation(&evidence[i].Chunk)
	}
	metrics.AnswersTotal.WithLabelValues(string(coverage)).Inc()
	return domain.Answer{
		Question:  question,
		Text:      text,
		Citations: citations,
		Coverage:  coverage,
	}, nil
}

// assembleContext lays out the evidence in fused order, each chunk labeled
// with the identifier the model is told to cite.
func assembleContext(evidence []domain.Evidence) string {
	var b strings.Builder
	for i := range evidence {
		c := &evidence[i].Chunk
		fmt.Fprintf(&b, "[%s] (%s, %s)\n%s\n\n", citation(c), c.Ticker, c.Class, c.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func citation(c *domain.Chunk) string {
	return c.SourceKey + "#" + c.ID
}
