package extract

import (
	"context"
	"sync"

	"github.com/finsight-ai/finsight/internal/domain"
)

type mockExtractor struct {
	mu        sync.Mutex
	calls     int
	critiques []string
	// drafts is consumed per call; the last entry repeats.
	drafts []domain.ExtractionDraft
	err    error
}

func (m *mockExtractor) Extract(_ context.Context, _ *domain.RawDocument, critique string) (domain.ExtractionDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.critiques = append(m.critiques, critique)
	i := m.calls
	m.calls++
	if m.err != nil {
		return domain.ExtractionDraft{}, m.err
	}
	if i >= len(m.drafts) {
		i = len(m.drafts) - 1
	}
	return m.drafts[i], nil
}

type mockState struct {
	mu          sync.Mutex
	transitions []domain.Status
	saved       *domain.Analysis

	deadLetterReason string
	deadLetterErr    string
}

func (m *mockState) Transition(_ context.Context, _ string, newStatus domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, newStatus)
	return nil
}

func (m *mockState) MarkDeadLetter(_ context.Context, _ string, reason, errDetail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, domain.StatusDeadLetter)
	m.deadLetterReason = reason
	m.deadLetterErr = errDetail
	return nil
}

func (m *mockState) SaveAnalysis(_ context.Context, _ string, a *domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = a
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
	last   any
}

func (m *mockPublisher) Publish(topic, _ string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	m.last = payload
}

func rawDoc() *domain.RawDocument {
	return &domain.RawDocument{
		Ticker:      "ACME",
		SourceKey:   "ACME:0001-24-000001",
		DocumentURL: "https://www.sec.gov/Archives/edgar/data/1/acme-8k.htm",
		FullText:    "Acme reported revenue of $1.2 billion for the quarter.",
	}
}

func validDraft() domain.ExtractionDraft {
	return domain.ExtractionDraft{
		KeyMetrics: []domain.DraftMetric{
			{Name: "Total Revenue", Value: "$1.2 billion", Unit: "USD"},
			{Name: "EPS", Value: "1.46", Unit: "USD"},
		},
		NarrativeSummary: []domain.Section{
			{Name: "results", Sentences: []string{"Revenue grew on services strength."}},
		},
		ForwardGuidance: []domain.Guidance{
			{Metric: "revenue", Statement: "Growth of 5 percent expected next quarter."},
		},
	}
}
