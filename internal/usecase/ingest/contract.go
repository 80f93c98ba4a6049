// Package ingest is the pipeline stage that discovers new filings for
// tracked tickers, deduplicates them by source key, and publishes raw
// document payloads for extraction.
package ingest

import (
	"context"

	"github.com/finsight-ai/finsight/internal/domain"
)

// Candidate is one filing reference returned by the document provider.
type Candidate struct {
	Ticker          string
	AccessionNumber string
	FilingType      string
	FilingDate      string
	DocumentURL     string
}

// Attachment is one entry of a filing's attachment manifest.
type Attachment struct {
	Name        string
	Description string
	URL         string
}

// Provider is the external document/attachment source. Implementations must
// surface rate-limit and transient failures as errors; the stage decides
// what to do with them.
type Provider interface {
	ListCandidates(ctx context.Context, ticker string) ([]Candidate, error)
	FetchText(ctx context.Context, url string) (string, error)
	ListAttachments(ctx context.Context, c Candidate) ([]Attachment, error)
}

// stateStore is the slice of the filing state repository this stage needs.
type stateStore interface {
	RecordIfNew(ctx context.Context, f domain.Filing) (bool, error)
	MarkDeadLetter(ctx context.Context, sourceKey, reason, errDetail string) error
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// publisher emits stage events onto the bus.
type publisher interface {
	Publish(topic, source string, payload any)
}
