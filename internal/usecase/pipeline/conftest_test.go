package pipeline

import (
	"context"
	"sync"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
)

type fakeState struct {
	mu sync.Mutex

	replayFiling domain.Filing
	replayErr    error
	analysis     domain.Analysis
	analysisErr  error
	transitionEr error
	deadLetterEr error

	transitions []domain.Status
	deadLetters []string
	events      []string

	deadLettered chan string
}

func newFakeState() *fakeState {
	return &fakeState{deadLettered: make(chan string, 8)}
}

func (f *fakeState) Replay(ctx context.Context, sourceKey string) (domain.Filing, error) {
	return f.replayFiling, f.replayErr
}

func (f *fakeState) Transition(ctx context.Context, sourceKey string, newStatus domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionEr != nil {
		return f.transitionEr
	}
	f.transitions = append(f.transitions, newStatus)
	return nil
}

func (f *fakeState) MarkDeadLetter(ctx context.Context, sourceKey, reason, errDetail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadLetterEr != nil {
		return f.deadLetterEr
	}
	f.deadLetters = append(f.deadLetters, sourceKey+":"+reason)
	select {
	case f.deadLettered <- sourceKey:
	default:
	}
	return nil
}

func (f *fakeState) GetAnalysis(ctx context.Context, sourceKey string) (domain.Analysis, error) {
	return f.analysis, f.analysisErr
}

func (f *fakeState) AppendEvent(ctx context.Context, topic, source, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, topic)
	return nil
}

func (f *fakeState) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeIngestor struct {
	mu          sync.Mutex
	cycleCalls  [][]string
	summary     ingest.Summary
	refetchDoc  *domain.RawDocument
	refetchErr  error
	refetchKeys []string
}

func (f *fakeIngestor) RunCycle(ctx context.Context, tickers []string) (ingest.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycleCalls = append(f.cycleCalls, tickers)
	return f.summary, nil
}

func (f *fakeIngestor) Refetch(ctx context.Context, filing *domain.Filing) (*domain.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refetchKeys = append(f.refetchKeys, filing.SourceKey)
	return f.refetchDoc, f.refetchErr
}

type fakeExtractor struct {
	err  error
	seen chan *domain.RawDocument
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{seen: make(chan *domain.RawDocument, 8)}
}

func (f *fakeExtractor) HandleRawDocument(ctx context.Context, doc *domain.RawDocument) error {
	if f.err != nil {
		return f.err
	}
	f.seen <- doc
	return nil
}

type fakeIndexer struct {
	err  error
	seen chan *domain.Analysis
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{seen: make(chan *domain.Analysis, 8)}
}

func (f *fakeIndexer) HandleAnalysis(ctx context.Context, a *domain.Analysis) error {
	if f.err != nil {
		return f.err
	}
	f.seen <- a
	return nil
}
