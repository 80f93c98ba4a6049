package chi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/repository/state"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
)

func TestRunCycleEndpoint(t *testing.T) {
	orch := &mockOrchestrator{summary: ingest.Summary{Processed: 5, NewFilings: 2}}
	h := newTestHandler(t, orch, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/cycles", `{"tickers":["AAPL","MSFT"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var sum ingest.Summary
	if err := json.NewDecoder(rr.Body).Decode(&sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Processed != 5 || sum.NewFilings != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if len(orch.cycleSeen) != 2 || orch.cycleSeen[0] != "AAPL" {
		t.Errorf("tickers = %v", orch.cycleSeen)
	}
}

func TestRunCycleEndpoint_EmptyBody(t *testing.T) {
	orch := &mockOrchestrator{}
	h := newTestHandler(t, orch, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/cycles", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if orch.cycleSeen != nil {
		t.Errorf("tickers = %v, want nil (configured watch list)", orch.cycleSeen)
	}
}

func TestAskEndpoint(t *testing.T) {
	ans := &mockAnswerer{answer: domain.Answer{
		Question:  "What was revenue?",
		Text:      "Revenue was $1.2B [AAPL:acc-1#c1].",
		Citations: []string{"AAPL:acc-1#c1"},
		Coverage:  domain.CoverageSufficient,
	}}
	h := newTestHandler(t, &mockOrchestrator{}, ans, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/ask", `{"question":"What was revenue?","ticker":"AAPL"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var got domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Coverage != domain.CoverageSufficient || len(got.Citations) != 1 {
		t.Errorf("answer = %+v", got)
	}
}

func TestAskEndpoint_MissingQuestion(t *testing.T) {
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/ask", `{"ticker":"AAPL"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeValidationFailed {
		t.Errorf("code = %q", errResp.Code)
	}
}

func TestAskEndpoint_RateLimited(t *testing.T) {
	ans := &mockAnswerer{err: domain.ErrRateLimited}
	h := newTestHandler(t, &mockOrchestrator{}, ans, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/ask", `{"question":"q"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
}

func TestListFilings(t *testing.T) {
	reader := &mockFilingReader{listed: []domain.Filing{
		{SourceKey: "AAPL:acc-1", Ticker: "AAPL", Status: domain.StatusDeadLetter,
			Reason: domain.ReasonIndexingFailed, CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}}
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, reader)

	rr := do(t, h, "GET", "/v1/filings?status=DEAD_LETTER", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Items []filingResponse `json:"items"`
		Total int              `json:"total"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].Reason != domain.ReasonIndexingFailed {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListFilings_UnknownStatus(t *testing.T) {
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "GET", "/v1/filings?status=BOGUS", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGetFiling_WithAnalysis(t *testing.T) {
	reader := &mockFilingReader{
		filing: domain.Filing{SourceKey: "AAPL:acc-1", Ticker: "AAPL", Status: domain.StatusIndexed},
		analysis: domain.Analysis{
			SourceKey:  "AAPL:acc-1",
			KeyMetrics: []domain.KeyMetric{{Name: "revenue", Value: 1.2e9, Unit: "USD"}},
		},
	}
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, reader)

	rr := do(t, h, "GET", "/v1/filings/AAPL:acc-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status   string           `json:"status"`
		Analysis *domain.Analysis `json:"analysis"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Analysis == nil || len(resp.Analysis.KeyMetrics) != 1 {
		t.Errorf("analysis missing from response: %+v", resp)
	}
}

func TestGetFiling_NotFound(t *testing.T) {
	reader := &mockFilingReader{getErr: domain.ErrFilingNotFound}
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, reader)

	rr := do(t, h, "GET", "/v1/filings/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestReplayFiling(t *testing.T) {
	orch := &mockOrchestrator{replayed: domain.Filing{
		SourceKey: "AAPL:acc-1", Ticker: "AAPL", Status: domain.StatusIngested, RetryCount: 1,
	}}
	h := newTestHandler(t, orch, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/filings/AAPL:acc-1/replay", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if len(orch.replayKeys) != 1 || orch.replayKeys[0] != "AAPL:acc-1" {
		t.Errorf("replay keys = %v", orch.replayKeys)
	}
}

func TestReplayFiling_Denied(t *testing.T) {
	orch := &mockOrchestrator{replayErr: domain.ErrReplayDenied}
	h := newTestHandler(t, orch, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "POST", "/v1/filings/AAPL:acc-1/replay", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeReplayDenied {
		t.Errorf("code = %q", errResp.Code)
	}
}

func TestOpsStatus(t *testing.T) {
	reader := &mockFilingReader{
		counts: map[domain.Status]int{domain.StatusIndexed: 3, domain.StatusDeadLetter: 1},
		events: []state.Event{{ID: "1-0", Topic: "filing.found", Source: "ingest", Detail: "AAPL:acc-1"}},
	}
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, reader)

	rr := do(t, h, "GET", "/v1/ops/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		StatusCounts map[string]int   `json:"status_counts"`
		RecentEvents []map[string]any `json:"recent_events"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCounts["INDEXED"] != 3 {
		t.Errorf("counts = %v", resp.StatusCounts)
	}
	if len(resp.RecentEvents) != 1 || resp.RecentEvents[0]["topic"] != "filing.found" {
		t.Errorf("events = %v", resp.RecentEvents)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, &mockOrchestrator{}, &mockAnswerer{}, &mockFilingReader{})

	rr := do(t, h, "GET", "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("health = %+v", resp)
	}
}
