package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Dead-letter reason codes. Machine-readable, stable across releases.
const (
	ReasonIngestionFetchFailed       = "ingestion_fetch_failed"
	ReasonExtractionValidationFailed = "extraction_validation_failed"
	ReasonIndexingFailed             = "indexing_failed"
	ReasonDeliveryExhausted          = "delivery_exhausted"
)

// Filing is the durable record of one disclosure document's lifecycle.
type Filing struct {
	SourceKey  string
	Ticker     string
	SourceURL  string
	FilingType string
	Status     Status
	Reason     string
	LastError  string
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MakeSourceKey composes the globally unique natural key for one
// disclosure from one issuer.
func MakeSourceKey(issuer, accession string) string {
	return strings.ToUpper(strings.TrimSpace(issuer)) + ":" + strings.TrimSpace(accession)
}

// Validate checks the record's required fields.
func (f *Filing) Validate() error {
	if f.SourceKey == "" {
		return fmt.Errorf("%w: source key is required", ErrInvalidPayload)
	}
	if f.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidPayload)
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, f.Status)
	}
	return nil
}

// Filing-type inference from archive URLs. Two passes: canonical path
// segments (/10-Q/, /8-K/ ...), then compact tokens in filenames (10q, 8k ...).
var canonicalFormPattern = regexp.MustCompile(`(?i)/(10-[QK](?:/A)?|8-K(?:/A)?|6-K|20-F|S-1|SD)(?:/|\b)`)

var compactFormTokens = map[string]string{
	"10q":  "10-Q",
	"10k":  "10-K",
	"10ka": "10-K/A",
	"10qa": "10-Q/A",
	"8k":   "8-K",
	"8ka":  "8-K/A",
	"6k":   "6-K",
	"20f":  "20-F",
	"s1":   "S-1",
	"sd":   "SD",
}

var compactFormPattern = regexp.MustCompile(`(?i)(?:^|[/\-_.])(10qa|10ka|10q|10k|8ka|8k|6k|20f|s1|sd)(?:[/\-_.]|$)`)

// InferFilingType extracts the form type from a document URL, or "" when
// neither heuristic matches.
func InferFilingType(url string) string {
	if url == "" {
		return ""
	}
	if m := canonicalFormPattern.FindStringSubmatch(url); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := compactFormPattern.FindStringSubmatch(url); m != nil {
		return compactFormTokens[strings.ToLower(m[1])]
	}
	return ""
}
