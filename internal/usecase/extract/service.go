package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/bus"
	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
)

const stageName = "extraction"

// Service implements the extraction stage.
type Service struct {
	extractor Extractor
	state     stateStore
	bus       publisher
}

// NewService creates an extraction stage.
func NewService(extractor Extractor, state stateStore, b publisher) *Service {
	return &Service{extractor: extractor, state: state, bus: b}
}

// HandleRawDocument processes one raw document payload. Model transport
// failures are returned to the caller for redelivery; validation failures
// get exactly one reflection retry before the filing is dead-lettered.
func (s *Service) HandleRawDocument(ctx context.Context, doc *domain.RawDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With(
		zap.String("source_key", doc.SourceKey),
		zap.String("stage", stageName),
	)
	if doc.ExhibitMissing() {
		log.Warn("extracting from cover page only, exhibit not located")
	}

	draft, err := s.extractor.Extract(ctx, doc, "")
	if err != nil {
		return fmt.Errorf("extract %s: %w", doc.SourceKey, err)
	}

	analysis, problems := normalize(doc, &draft)
	if len(problems) > 0 {
		critique := "The previous extraction was rejected: " + strings.Join(problems, "; ") + "."
		log.Info("extraction failed validation, issuing reflection retry",
			zap.Strings("problems", problems))

		draft, err = s.extractor.Extract(ctx, doc, critique)
		if err != nil {
			return fmt.Errorf("reflection extract %s: %w", doc.SourceKey, err)
		}
		analysis, problems = normalize(doc, &draft)
	}
	if len(problems) > 0 {
		detail := strings.Join(problems, "; ")
		log.Warn("extraction exhausted reflection retry", zap.String("detail", detail))
		if err := s.state.MarkDeadLetter(ctx, doc.SourceKey, domain.ReasonExtractionValidationFailed, detail); err != nil {
			return fmt.Errorf("dead-letter %s: %w", doc.SourceKey, err)
		}
		// Dead-lettering is the terminal outcome; redelivery would not help.
		return nil
	}

	if err := s.state.SaveAnalysis(ctx, doc.SourceKey, analysis); err != nil {
		return fmt.Errorf("save analysis %s: %w", doc.SourceKey, err)
	}
	if err := s.state.Transition(ctx, doc.SourceKey, domain.StatusAnalyzed); err != nil {
		return fmt.Errorf("transition %s: %w", doc.SourceKey, err)
	}

	s.bus.Publish(bus.TopicAnalysisCompleted, stageName, analysis)
	log.Info("filing analyzed",
		zap.Int("key_metrics", len(analysis.KeyMetrics)),
		zap.Int("sections", len(analysis.NarrativeSummary)),
	)
	return nil
}

// normalize converts a draft into a validated analysis. The returned problem
// list is empty on success and otherwise feeds the reflection critique.
func normalize(doc *domain.RawDocument, draft *domain.ExtractionDraft) (*domain.Analysis, []string) {
	var problems []string

	metrics := make([]domain.KeyMetric, 0, len(draft.KeyMetrics))
	parsed := 0
	for i, dm := range draft.KeyMetrics {
		name := canonicalMetricName(dm.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("key_metrics[%d] has no name", i))
			continue
		}
		m := domain.KeyMetric{Name: name, Unit: strings.TrimSpace(dm.Unit)}
		if v, ok := parseNumeric(dm.Value); ok {
			m.Value = v
			parsed++
		} else {
			m.Ambiguous = true
		}
		metrics = append(metrics, m)
	}
	if parsed == 0 {
		problems = append(problems, "no key metric with a parseable numeric value (key_metrics must contain at least one)")
	}

	for i, g := range draft.ForwardGuidance {
		if strings.TrimSpace(g.Statement) == "" {
			problems = append(problems, fmt.Sprintf("forward_guidance[%d] has an empty statement", i))
		}
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return &domain.Analysis{
		Ticker:           doc.Ticker,
		SourceKey:        doc.SourceKey,
		KeyMetrics:       metrics,
		NarrativeSummary: draft.NarrativeSummary,
		ForwardGuidance:  draft.ForwardGuidance,
	}, nil
}
