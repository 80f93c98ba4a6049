package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/repository/state"
	healthuc "github.com/finsight-ai/finsight/internal/usecase/health"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
)

type mockOrchestrator struct {
	summary    ingest.Summary
	cycleErr   error
	cycleSeen  []string
	replayed   domain.Filing
	replayErr  error
	replayKeys []string
}

func (m *mockOrchestrator) RunCycle(ctx context.Context, tickers []string) (ingest.Summary, error) {
	m.cycleSeen = tickers
	return m.summary, m.cycleErr
}

func (m *mockOrchestrator) Replay(ctx context.Context, sourceKey string) (domain.Filing, error) {
	m.replayKeys = append(m.replayKeys, sourceKey)
	return m.replayed, m.replayErr
}

type mockAnswerer struct {
	answer domain.Answer
	err    error
}

func (m *mockAnswerer) Answer(ctx context.Context, question, ticker string) (domain.Answer, error) {
	return m.answer, m.err
}

type mockFilingReader struct {
	filing      domain.Filing
	getErr      error
	analysis    domain.Analysis
	analysisErr error
	listed      []domain.Filing
	listErr     error
	counts      map[domain.Status]int
	events      []state.Event
}

func (m *mockFilingReader) Get(ctx context.Context, sourceKey string) (domain.Filing, error) {
	return m.filing, m.getErr
}

func (m *mockFilingReader) GetAnalysis(ctx context.Context, sourceKey string) (domain.Analysis, error) {
	return m.analysis, m.analysisErr
}

func (m *mockFilingReader) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Filing, error) {
	return m.listed, m.listErr
}

func (m *mockFilingReader) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	return m.counts, nil
}

func (m *mockFilingReader) RecentEvents(ctx context.Context, count int) ([]state.Event, error) {
	return m.events, nil
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestHandler(t *testing.T, o *mockOrchestrator, a *mockAnswerer, f *mockFilingReader) http.Handler {
	t.Helper()
	srv := NewServer(o, a, f, healthuc.New(&mockPinger{}, nil), zap.NewNop())
	r := chirouter.NewRouter()
	srv.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
