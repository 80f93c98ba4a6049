// Package edgar implements the document provider against the SEC EDGAR
// full-text archive: ticker to CIK resolution, submission listings,
// attachment manifests, and filing text fetches.
//
// All requests go through a shared proactive rate limiter; SEC fair-access
// policy caps automated clients at roughly ten requests per second.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
	"github.com/finsight-ai/finsight/internal/version"
)

const (
	defaultSubmissionsURL = "https://data.sec.gov"
	defaultArchivesURL    = "https://www.sec.gov"

	// maxCandidatesPerTicker bounds how far back one cycle looks.
	maxCandidatesPerTicker = 10
)

// Config holds EDGAR client settings.
type Config struct {
	// UserAgent is required by SEC policy and must identify the operator.
	UserAgent string
	// RequestsPerSecond caps outbound request rate (default 8).
	RequestsPerSecond float64
	Timeout           time.Duration

	// SubmissionsBaseURL and ArchivesBaseURL override the SEC hosts in tests.
	SubmissionsBaseURL string
	ArchivesBaseURL    string
}

// Client implements ingest.Provider against EDGAR.
type Client struct {
	http        *http.Client
	limiter     *rate.Limiter
	userAgent   string
	submissions string
	archives    string
	logger      *zap.Logger

	mu   sync.Mutex
	ciks map[string]string // ticker -> zero-padded CIK
}

// New creates an EDGAR client.
func New(cfg *Config, logger *zap.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	submissions := cfg.SubmissionsBaseURL
	if submissions == "" {
		submissions = defaultSubmissionsURL
	}
	archives := cfg.ArchivesBaseURL
	if archives == "" {
		archives = defaultArchivesURL
	}

	// SEC policy wants an operator contact; the build token helps their
	// side attribute traffic to a release.
	ua := strings.TrimSpace(cfg.UserAgent + " " + version.String())

	return &Client{
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		userAgent:   ua,
		submissions: submissions,
		archives:    archives,
		logger:      logger,
		ciks:        make(map[string]string),
	}
}

// submissionsEnvelope is the shape of data.sec.gov/submissions/CIK#.json;
// the arrays are parallel, nested under filings.recent.
type submissionsEnvelope struct {
	CIK     json.Number `json:"cik"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// ListCandidates implements ingest.Provider.
func (c *Client) ListCandidates(ctx context.Context, ticker string) ([]ingest.Candidate, error) {
	cik, err := c.resolveCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var env submissionsEnvelope
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.submissions, cik)
	if err := c.getJSON(ctx, url, &env); err != nil {
		return nil, fmt.Errorf("submissions for %s: %w", ticker, err)
	}

	recent := env.Filings.Recent
	n := len(recent.AccessionNumber)
	if n > maxCandidatesPerTicker {
		n = maxCandidatesPerTicker
	}

	candidates := make([]ingest.Candidate, 0, n)
	for i := 0; i < n; i++ {
		if i >= len(recent.Form) || i >= len(recent.PrimaryDocument) {
			break
		}
		accession := recent.AccessionNumber[i]
		candidates = append(candidates, ingest.Candidate{
			Ticker:          strings.ToUpper(ticker),
			AccessionNumber: accession,
			FilingType:      recent.Form[i],
			FilingDate:      dateAt(recent.FilingDate, i),
			DocumentURL: fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
				c.archives, strings.TrimLeft(cik, "0"),
				strings.ReplaceAll(accession, "-", ""),
				recent.PrimaryDocument[i]),
		})
	}
	return candidates, nil
}

func dateAt(dates []string, i int) string {
	if i < len(dates) {
		return dates[i]
	}
	return ""
}

// FetchText implements ingest.Provider. HTML documents are flattened to
// plain text; anything else is returned as-is.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	body, contentType, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	text := string(body)
	if strings.Contains(contentType, "html") ||
		strings.HasSuffix(url, ".htm") || strings.HasSuffix(url, ".html") {
		text = htmlToText(text)
	}
	return text, nil
}

// directoryIndex is the shape of an archive directory's index.json.
type directoryIndex struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"item"`
	} `json:"directory"`
}

// ListAttachments implements ingest.Provider using the filing directory's
// index.json manifest.
func (c *Client) ListAttachments(ctx context.Context, cand ingest.Candidate) ([]ingest.Attachment, error) {
	dirURL, err := c.archiveDirURL(&cand)
	if err != nil {
		return nil, err
	}

	var idx directoryIndex
	if err := c.getJSON(ctx, dirURL+"/index.json", &idx); err != nil {
		return nil, fmt.Errorf("attachment manifest %s: %w", cand.AccessionNumber, err)
	}

	attachments := make([]ingest.Attachment, 0, len(idx.Directory.Item))
	for _, item := range idx.Directory.Item {
		attachments = append(attachments, ingest.Attachment{
			Name:        item.Name,
			Description: item.Type,
			URL:         dirURL + "/" + item.Name,
		})
	}
	return attachments, nil
}

// archiveDirURL derives the filing's archive directory from its primary
// document URL, which already encodes CIK and accession.
func (c *Client) archiveDirURL(cand *ingest.Candidate) (string, error) {
	i := strings.LastIndex(cand.DocumentURL, "/")
	if i < 0 {
		return "", fmt.Errorf("%w: malformed document url %q", domain.ErrInvalidPayload, cand.DocumentURL)
	}
	return cand.DocumentURL[:i], nil
}

// tickerIndex is the shape of company_tickers.json: object keyed by index.
type tickerIndex map[string]struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
}

// resolveCIK maps a ticker to its zero-padded CIK, loading the full SEC
// ticker index once and caching it for the process lifetime.
func (c *Client) resolveCIK(ctx context.Context, ticker string) (string, error) {
	key := strings.ToUpper(ticker)

	c.mu.Lock()
	cik, ok := c.ciks[key]
	c.mu.Unlock()
	if ok {
		return cik, nil
	}

	var idx tickerIndex
	if err := c.getJSON(ctx, c.archives+"/files/company_tickers.json", &idx); err != nil {
		return "", fmt.Errorf("ticker index: %w", err)
	}

	c.mu.Lock()
	for _, entry := range idx {
		c.ciks[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
	}
	cik, ok = c.ciks[key]
	c.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: unknown ticker %s", domain.ErrNotFound, ticker)
	}
	return cik, nil
}

func (c *Client) get(ctx context.Context, url string) (body []byte, contentType string, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	// Accept-Encoding is left to the transport: setting it manually would
	// opt out of net/http's transparent gzip decompression, and data.sec.gov
	// always compresses when asked.
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", fmt.Errorf("%w: edgar throttled %s", domain.ErrRateLimited, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	body, _, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
