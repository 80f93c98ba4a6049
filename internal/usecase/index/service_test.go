package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/finsight-ai/finsight/internal/bus"
	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/metrics"
)

func TestHandleAnalysisIndexesAndTransitions(t *testing.T) {
	emb := &mockEmbedder{}
	chunks := newMockChunkStore()
	lex := &mockLexical{}
	state := &mockState{}
	pub := &mockPublisher{}
	svc := NewService(emb, chunks, lex, state, pub)

	if err := svc.HandleAnalysis(context.Background(), analysisFixture()); err != nil {
		t.Fatalf("HandleAnalysis: %v", err)
	}

	// 2 metric chunks + 1 narrative section + 1 guidance chunk.
	if len(chunks.stored) != 4 {
		t.Errorf("stored chunks = %d, want 4", len(chunks.stored))
	}
	if emb.calls != 4 {
		t.Errorf("embed calls = %d, want 4", emb.calls)
	}
	for id, c := range chunks.stored {
		if len(c.Vector) == 0 {
			t.Errorf("chunk %s upserted without vector", id)
		}
	}
	want := []domain.Status{domain.StatusAnalyzedNotIndexed, domain.StatusIndexed}
	if len(state.transitions) != 2 || state.transitions[0] != want[0] || state.transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", state.transitions, want)
	}
	if lex.rebuilds != 1 || lex.lastSize != 4 {
		t.Errorf("lexical rebuilds = %d size = %d", lex.rebuilds, lex.lastSize)
	}
	if len(pub.topics) != 1 || pub.topics[0] != bus.TopicIndexCompleted {
		t.Errorf("published = %v", pub.topics)
	}
}

func TestHandleAnalysisIdempotentReindex(t *testing.T) {
	chunks := newMockChunkStore()
	svc := NewService(&mockEmbedder{}, chunks, &mockLexical{}, &mockState{}, &mockPublisher{})
	ctx := context.Background()

	if err := svc.HandleAnalysis(ctx, analysisFixture()); err != nil {
		t.Fatal(err)
	}
	firstIDs := make(map[string]bool, len(chunks.stored))
	for id := range chunks.stored {
		firstIDs[id] = true
	}

	// Second run over the same analysis must overwrite, not accumulate.
	state2 := &mockState{}
	svc2 := NewService(&mockEmbedder{}, chunks, &mockLexical{}, state2, &mockPublisher{})
	if err := svc2.HandleAnalysis(ctx, analysisFixture()); err != nil {
		t.Fatal(err)
	}
	if len(chunks.stored) != len(firstIDs) {
		t.Fatalf("chunks after re-index = %d, want %d", len(chunks.stored), len(firstIDs))
	}
	for id := range chunks.stored {
		if !firstIDs[id] {
			t.Errorf("re-index produced new id %s", id)
		}
	}
}

func TestHandleAnalysisEmbeddingFailureDeadLetters(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("embedding provider down")}
	state := &mockState{}
	pub := &mockPublisher{}
	svc := NewService(emb, newMockChunkStore(), &mockLexical{}, state, pub)

	err := svc.HandleAnalysis(context.Background(), analysisFixture())
	if err != nil {
		t.Fatalf("dead-letter path must not error for redelivery: %v", err)
	}
	if state.deadLetterReason != domain.ReasonIndexingFailed {
		t.Errorf("reason = %q", state.deadLetterReason)
	}
	if !strings.Contains(state.deadLetterErr, "embedding provider down") {
		t.Errorf("error detail = %q", state.deadLetterErr)
	}
	if len(pub.topics) != 0 {
		t.Errorf("published = %v, want none", pub.topics)
	}
}

func TestHandleAnalysisUpsertFailureDeadLetters(t *testing.T) {
	chunks := newMockChunkStore()
	chunks.err = errors.New("index unavailable")
	state := &mockState{}
	svc := NewService(&mockEmbedder{}, chunks, &mockLexical{}, state, &mockPublisher{})

	if err := svc.HandleAnalysis(context.Background(), analysisFixture()); err != nil {
		t.Fatal(err)
	}
	if state.deadLetterReason != domain.ReasonIndexingFailed {
		t.Errorf("reason = %q", state.deadLetterReason)
	}
}

func TestHandleAnalysisRejectsInvalid(t *testing.T) {
	svc := NewService(&mockEmbedder{}, newMockChunkStore(), &mockLexical{}, &mockState{}, &mockPublisher{})

	err := svc.HandleAnalysis(context.Background(), &domain.Analysis{SourceKey: "ACME:1"})
	if !errors.Is(err, domain.ErrExtractionInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestRebuildLexicalSetsIndexSizeGauge(t *testing.T) {
	chunks := newMockChunkStore()
	svc := NewService(&mockEmbedder{}, chunks, &mockLexical{}, &mockState{}, &mockPublisher{})

	if err := svc.HandleAnalysis(context.Background(), analysisFixture()); err != nil {
		t.Fatal(err)
	}

	got := testutil.ToFloat64(metrics.LexicalIndexSize)
	if got != float64(len(chunks.stored)) {
		t.Errorf("lexical index gauge = %v, want %d", got, len(chunks.stored))
	}
}
