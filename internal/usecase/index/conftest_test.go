package index

import (
	"context"
	"sync"

	"github.com/finsight-ai/finsight/internal/domain"
)

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}}, nil
}

type mockChunkStore struct {
	mu     sync.Mutex
	stored map[string]domain.Chunk
	err    error
}

func newMockChunkStore() *mockChunkStore {
	return &mockChunkStore{stored: make(map[string]domain.Chunk)}
}

func (m *mockChunkStore) Upsert(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, c := range chunks {
		m.stored[c.ID] = c
	}
	return nil
}

func (m *mockChunkStore) All(context.Context) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Chunk, 0, len(m.stored))
	for _, c := range m.stored {
		out = append(out, c)
	}
	return out, nil
}

type mockLexical struct {
	rebuilds int
	lastSize int
}

func (m *mockLexical) Rebuild(chunks []domain.Chunk) {
	m.rebuilds++
	m.lastSize = len(chunks)
}

type mockState struct {
	mu          sync.Mutex
	transitions []domain.Status

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

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (m *mockPublisher) Publish(topic, _ string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
}

func analysisFixture() *domain.Analysis {
	return &domain.Analysis{
		Ticker:    "ACME",
		SourceKey: "ACME:0001-24-000001",
		KeyMetrics: []domain.KeyMetric{
			{Name: "revenue", Value: 1.2e9, Unit: "USD"},
			{Name: "eps", Value: 1.46, Unit: "USD"},
		},
		NarrativeSummary: []domain.Section{
			{Name: "results", Sentences: []string{"Revenue grew on services strength.", "Margins held."}},
		},
		ForwardGuidance: []domain.Guidance{
			{Metric: "revenue", Statement: "Growth of 5 percent expected."},
		},
	}
}
