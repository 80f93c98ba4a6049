package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/metrics"
)

type mockProvider struct {
	mu          sync.Mutex
	candidates  map[string][]Candidate
	texts       map[string]string
	attachments []Attachment

	listErr       error
	fetchErr      error
	attachListErr error

	fetched []string
}

func (m *mockProvider) ListCandidates(_ context.Context, ticker string) ([]Candidate, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.candidates[ticker], nil
}

func (m *mockProvider) FetchText(_ context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	m.fetched = append(m.fetched, url)
	return m.texts[url], nil
}

func (m *mockProvider) ListAttachments(context.Context, Candidate) ([]Attachment, error) {
	if m.attachListErr != nil {
		return nil, m.attachListErr
	}
	return m.attachments, nil
}

type mockState struct {
	mu          sync.Mutex
	seen        map[string]domain.Filing
	counts      map[domain.Status]int
	deadLetters map[string]string // sourceKey -> reason
	err         error
	deadErr     error
}

func newMockState() *mockState {
	return &mockState{
		seen:        make(map[string]domain.Filing),
		counts:      make(map[domain.Status]int),
		deadLetters: make(map[string]string),
	}
}

func (m *mockState) RecordIfNew(_ context.Context, f domain.Filing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.seen[f.SourceKey]; ok {
		return false, nil
	}
	m.seen[f.SourceKey] = f
	return true, nil
}

func (m *mockState) MarkDeadLetter(_ context.Context, sourceKey, reason, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deadErr != nil {
		return m.deadErr
	}
	m.deadLetters[sourceKey] = reason
	return nil
}

func (m *mockState) CountByStatus(context.Context) (map[domain.Status]int, error) {
	return m.counts, nil
}

type mockPublisher struct {
	mu       sync.Mutex
	payloads []any
}

func (m *mockPublisher) Publish(_, _ string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
}

func (m *mockPublisher) docs() []*domain.RawDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.RawDocument
	for _, p := range m.payloads {
		if d, ok := p.(*domain.RawDocument); ok {
			out = append(out, d)
		}
	}
	return out
}

const coverURL = "https://www.sec.gov/Archives/edgar/data/1/acme-8k.htm"

func fullProvider(text string) *mockProvider {
	return &mockProvider{
		candidates: map[string][]Candidate{
			"ACME": {{
				Ticker:          "ACME",
				AccessionNumber: "0001-24-000001",
				FilingType:      "8-K",
				FilingDate:      "2026-08-28",
				DocumentURL:     coverURL,
			}},
		},
		texts: map[string]string{coverURL: text},
	}
}

func longText() string {
	return strings.Repeat("Acme reported another strong quarter of results. ", 40)
}

func TestRunCyclePublishesNewFilings(t *testing.T) {
	provider := fullProvider(longText())
	state := newMockState()
	pub := &mockPublisher{}
	svc := NewService(provider, state, pub)

	sum, err := svc.RunCycle(context.Background(), []string{"ACME"})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sum.Processed != 1 || sum.NewFilings != 1 {
		t.Errorf("summary = %+v", sum)
	}

	docs := pub.docs()
	if len(docs) != 1 {
		t.Fatalf("published docs = %d, want 1", len(docs))
	}
	doc := docs[0]
	if doc.SourceKey != "ACME:0001-24-000001" {
		t.Errorf("source key = %q", doc.SourceKey)
	}
	if doc.ExhibitMissing() {
		t.Error("long document wrongly marked exhibit_missing")
	}
	if doc.Metadata[domain.MetaFilingDate] != "2026-08-28" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

func TestRunCycleSkipsAlreadySeen(t *testing.T) {
	provider := fullProvider(longText())
	state := newMockState()
	pub := &mockPublisher{}
	svc := NewService(provider, state, pub)
	ctx := context.Background()

	if _, err := svc.RunCycle(ctx, []string{"ACME"}); err != nil {
		t.Fatal(err)
	}
	sum, err := svc.RunCycle(ctx, []string{"ACME"})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 1 || sum.NewFilings != 0 {
		t.Errorf("second cycle summary = %+v", sum)
	}
	if len(pub.docs()) != 1 {
		t.Errorf("docs published across cycles = %d, want 1", len(pub.docs()))
	}
}

func TestThinDocumentExhibitAppended(t *testing.T) {
	provider := fullProvider("Short cover page.")
	provider.attachments = []Attachment{
		{Name: "exhibit-index.htm", Description: "index", URL: "https://example.com/index"},
		{Name: "ex-99-1.htm", Description: "Press Release", URL: "https://example.com/ex99"},
	}
	provider.texts["https://example.com/ex99"] = "Acme reports revenue of $1.2 billion."
	pub := &mockPublisher{}
	svc := NewService(provider, newMockState(), pub)
	if _, err := svc.RunCycle(context.Background(), []string{"ACME"}); err != nil {
		t.Fatal(err)
	}

	docs := pub.docs()
	if len(docs) != 1 {
		t.Fatalf("docs = %d", len(docs))
	}
	if !strings.Contains(docs[0].FullText, "Short cover page.") ||
		!strings.Contains(docs[0].FullText, "revenue of $1.2 billion") {
		t.Errorf("exhibit text not appended:\n%s", docs[0].FullText)
	}
	if docs[0].ExhibitMissing() {
		t.Error("exhibit found but marked missing")
	}
}

func TestThinDocumentExhibitMissingMarked(t *testing.T) {
	provider := fullProvider("Short cover page.")
	provider.attachments = []Attachment{
		{Name: "graphic.jpg", Description: "logo", URL: "https://example.com/logo"},
	}
	pub := &mockPublisher{}
	svc := NewService(provider, newMockState(), pub)

	if _, err := svc.RunCycle(context.Background(), []string{"ACME"}); err != nil {
		t.Fatal(err)
	}
	docs := pub.docs()
	if len(docs) != 1 {
		t.Fatalf("docs = %d (publish-anyway policy)", len(docs))
	}
	if !docs[0].ExhibitMissing() {
		t.Error("missing exhibit not marked")
	}
}

func TestThinPolicyIgnoresNonExhibitTypes(t *testing.T) {
	provider := fullProvider("Short annual report stub.")
	provider.candidates["ACME"][0].FilingType = "10-K"
	pub := &mockPublisher{}
	svc := NewService(provider, newMockState(), pub)

	if _, err := svc.RunCycle(context.Background(), []string{"ACME"}); err != nil {
		t.Fatal(err)
	}
	docs := pub.docs()
	if len(docs) != 1 || docs[0].ExhibitMissing() {
		t.Fatalf("10-K must skip the exhibit scan entirely: %+v", docs)
	}
	// Only the primary document may have been fetched.
	if len(provider.fetched) != 1 {
		t.Errorf("fetches = %v", provider.fetched)
	}
}

func TestRunCycleTickerFailureDoesNotAbort(t *testing.T) {
	provider := fullProvider(longText())
	provider.candidates["BETA"] = nil
	pub := &mockPublisher{}
	svc := NewService(provider, newMockState(), pub)

	// BETA yields nothing, ACME still processes.
	sum, err := svc.RunCycle(context.Background(), []string{"BETA", "ACME"})
	if err != nil {
		t.Fatal(err)
	}
	if sum.NewFilings != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunCycleFetchFailureDeadLettersCandidate(t *testing.T) {
	provider := fullProvider(longText())
	provider.fetchErr = errors.New("rate limited")
	state := newMockState()
	pub := &mockPublisher{}
	svc := NewService(provider, state, pub)

	sum, err := svc.RunCycle(context.Background(), []string{"ACME"})
	if err != nil {
		t.Fatalf("cycle must not abort on one candidate: %v", err)
	}
	if sum.NewFilings != 0 || len(pub.docs()) != 0 {
		t.Errorf("summary = %+v, docs = %d", sum, len(pub.docs()))
	}
	// The record was already created at the dedup gate, so a stranded
	// INGESTED row would be skipped by every later cycle. It must land in
	// DEAD_LETTER instead, where replay can refetch it.
	if got := state.deadLetters["ACME:0001-24-000001"]; got != domain.ReasonIngestionFetchFailed {
		t.Errorf("dead-letter reason = %q, want %q", got, domain.ReasonIngestionFetchFailed)
	}
}

func TestRunCycleFetchRecoveryViaDeadLetter(t *testing.T) {
	provider := fullProvider(longText())
	provider.fetchErr = errors.New("timeout")
	state := newMockState()
	pub := &mockPublisher{}
	svc := NewService(provider, state, pub)
	ctx := context.Background()

	if _, err := svc.RunCycle(ctx, []string{"ACME"}); err != nil {
		t.Fatal(err)
	}
	provider.mu.Lock()
	provider.fetchErr = nil
	provider.mu.Unlock()

	// A second cycle still skips: recovery is the replay path, which
	// refetches against the stored record.
	if _, err := svc.RunCycle(ctx, []string{"ACME"}); err != nil {
		t.Fatal(err)
	}
	if len(pub.docs()) != 0 {
		t.Fatalf("cycle republished a seen filing: %d docs", len(pub.docs()))
	}

	f := state.seen["ACME:0001-24-000001"]
	doc, err := svc.Refetch(ctx, &f)
	if err != nil {
		t.Fatalf("Refetch after recovery: %v", err)
	}
	if doc.SourceKey != "ACME:0001-24-000001" || doc.FullText == "" {
		t.Errorf("refetched doc = %+v", doc)
	}
}

func TestRefetchReappliesThinPolicy(t *testing.T) {
	provider := fullProvider("Short cover page.")
	provider.attachments = []Attachment{
		{Name: "ex-99-1.htm", Description: "Press Release", URL: "https://example.com/ex99"},
	}
	provider.texts["https://example.com/ex99"] = "Exhibit body."
	svc := NewService(provider, newMockState(), &mockPublisher{})

	doc, err := svc.Refetch(context.Background(), &domain.Filing{
		SourceKey:  "ACME:0001-24-000001",
		Ticker:     "ACME",
		SourceURL:  coverURL,
		FilingType: "8-K",
	})
	if err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if !strings.Contains(doc.FullText, "Exhibit body.") {
		t.Errorf("full text = %q", doc.FullText)
	}
}

func TestRunCycleCountsIngestedFilings(t *testing.T) {
	before := testutil.ToFloat64(metrics.FilingsIngestedTotal.WithLabelValues("8-K"))

	svc := NewService(fullProvider(longText()), newMockState(), &mockPublisher{})
	if _, err := svc.RunCycle(context.Background(), []string{"ACME"}); err != nil {
		t.Fatal(err)
	}

	after := testutil.ToFloat64(metrics.FilingsIngestedTotal.WithLabelValues("8-K"))
	if after != before+1 {
		t.Errorf("ingested counter = %v, want %v", after, before+1)
	}
}
