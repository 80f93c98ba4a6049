package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/bus"
	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
	"github.com/finsight-ai/finsight/internal/metrics"
)

const stageName = "ingestion"

// thinDocumentThreshold is the text length below which a filing is assumed
// to be a cover page whose substance lives in a named exhibit.
const thinDocumentThreshold = 1000

// thinFilingTypes are the filing types known to carry essential data in an
// Exhibit 99.1 press release rather than the primary document.
var thinFilingTypes = map[string]bool{"8-K": true, "6-K": true}

// exhibitPatterns match the attachment name or description of the press
// release exhibit, lowercased.
var exhibitPatterns = []string{"99.1", "ex-99", "press release"}

// Summary reports one ingestion cycle: how many candidates were examined and
// newly published, plus a pipeline-wide status snapshot taken at cycle end.
type Summary struct {
	Processed    int `json:"processed"`
	NewFilings   int `json:"new_filings"`
	Analyzed     int `json:"analyzed"`
	Indexed      int `json:"indexed"`
	DeadLettered int `json:"dead_lettered"`
}

// Service implements the ingestion stage.
type Service struct {
	provider Provider
	state    stateStore
	bus      publisher
}

// NewService creates an ingestion stage.
func NewService(provider Provider, state stateStore, b publisher) *Service {
	return &Service{provider: provider, state: state, bus: b}
}

// RunCycle polls the provider for every tracked ticker and publishes a raw
// document payload for each genuinely new filing. One ticker's failure never
// aborts the cycle; it is logged and the cycle moves on.
func (s *Service) RunCycle(ctx context.Context, tickers []string) (Summary, error) {
	log := logger.FromContext(ctx).With(zap.String("stage", stageName))
	var sum Summary

	for _, ticker := range tickers {
		candidates, err := s.provider.ListCandidates(ctx, ticker)
		if err != nil {
			log.Warn("listing candidates failed, skipping ticker",
				zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		for i := range candidates {
			sum.Processed++
			published, err := s.ingestCandidate(ctx, &candidates[i])
			if err != nil {
				log.Warn("candidate ingestion failed",
					zap.String("ticker", ticker),
					zap.String("accession", candidates[i].AccessionNumber),
					zap.Error(err))
				continue
			}
			if published {
				sum.NewFilings++
			}
		}
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
	}

	counts, err := s.state.CountByStatus(ctx)
	if err != nil {
		return sum, err
	}
	sum.Analyzed = counts[domain.StatusAnalyzed] + counts[domain.StatusAnalyzedNotIndexed]
	sum.Indexed = counts[domain.StatusIndexed]
	sum.DeadLettered = counts[domain.StatusDeadLetter]

	log.Info("ingestion cycle complete",
		zap.Int("processed", sum.Processed),
		zap.Int("new_filings", sum.NewFilings),
	)
	return sum, nil
}

// ingestCandidate returns true when the candidate was new and its payload
// was published. A false with nil error means the filing was already seen.
func (s *Service) ingestCandidate(ctx context.Context, c *Candidate) (bool, error) {
	sourceKey := domain.MakeSourceKey(c.Ticker, c.AccessionNumber)
	filingType := c.FilingType
	if filingType == "" {
		filingType = domain.InferFilingType(c.DocumentURL)
	}

	created, err := s.state.RecordIfNew(ctx, domain.Filing{
		SourceKey:  sourceKey,
		Ticker:     strings.ToUpper(c.Ticker),
		SourceURL:  c.DocumentURL,
		FilingType: filingType,
		Status:     domain.StatusIngested,
	})
	if err != nil {
		return false, err
	}
	if !created {
		// Already seen. Deduplication, not an error.
		return false, nil
	}

	doc, err := s.fetchDocument(ctx, c, sourceKey, filingType)
	if err != nil {
		// The record already exists, so later cycles would skip this filing
		// at the dedup gate. Dead-letter it instead: the replay path refetches
		// and resumes, which a stranded INGESTED record never would.
		if dlErr := s.state.MarkDeadLetter(ctx, sourceKey, domain.ReasonIngestionFetchFailed, err.Error()); dlErr != nil {
			return false, fmt.Errorf("fetch failed (%v), dead-letter failed: %w", err, dlErr)
		}
		return false, err
	}
	s.bus.Publish(bus.TopicFilingFound, stageName, doc)
	metrics.FilingsIngestedTotal.WithLabelValues(filingType).Inc()
	return true, nil
}

// fetchDocument fetches the primary text and applies the thin-document
// policy: short cover pages of exhibit-bearing types get the press release
// exhibit appended, or are marked exhibit_missing when it cannot be found.
func (s *Service) fetchDocument(ctx context.Context, c *Candidate, sourceKey, filingType string) (*domain.RawDocument, error) {
	text, err := s.provider.FetchText(ctx, c.DocumentURL)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		domain.MetaFilingType: filingType,
	}
	if c.FilingDate != "" {
		metadata[domain.MetaFilingDate] = c.FilingDate
	}

	if len(text) < thinDocumentThreshold && thinFilingTypes[filingType] {
		exhibitText, found := s.fetchExhibit(ctx, c)
		if found {
			text = text + "\n\n" + exhibitText
		} else {
			metadata[domain.MetaExhibitMissing] = "true"
		}
	}

	return &domain.RawDocument{
		Ticker:      strings.ToUpper(c.Ticker),
		SourceKey:   sourceKey,
		DocumentURL: c.DocumentURL,
		FullText:    text,
		Metadata:    metadata,
	}, nil
}

func (s *Service) fetchExhibit(ctx context.Context, c *Candidate) (string, bool) {
	log := logger.FromContext(ctx)

	attachments, err := s.provider.ListAttachments(ctx, *c)
	if err != nil {
		log.Warn("attachment manifest unavailable",
			zap.String("accession", c.AccessionNumber), zap.Error(err))
		return "", false
	}
	for _, a := range attachments {
		if !matchesExhibit(&a) {
			continue
		}
		text, err := s.provider.FetchText(ctx, a.URL)
		if err != nil {
			log.Warn("exhibit fetch failed",
				zap.String("attachment", a.Name), zap.Error(err))
			return "", false
		}
		return text, true
	}
	return "", false
}

func matchesExhibit(a *Attachment) bool {
	name := strings.ToLower(a.Name)
	desc := strings.ToLower(a.Description)
	for _, p := range exhibitPatterns {
		if strings.Contains(name, p) || strings.Contains(desc, p) {
			return true
		}
	}
	return false
}

// Refetch rebuilds the raw document payload for an already recorded filing.
// Used by replay when no saved analysis exists, so a dead-lettered filing
// can re-enter extraction without a second dedup record.
func (s *Service) Refetch(ctx context.Context, f *domain.Filing) (*domain.RawDocument, error) {
	_, accession, _ := strings.Cut(f.SourceKey, ":")
	c := Candidate{
		Ticker:          f.Ticker,
		AccessionNumber: accession,
		FilingType:      f.FilingType,
		DocumentURL:     f.SourceURL,
	}
	return s.fetchDocument(ctx, &c, f.SourceKey, f.FilingType)
}
