// Package pipeline wires the processing stages to the message bus, runs the
// periodic ingestion poll, and owns replay. The query path never goes
// through here: a slow fetch cannot stall answering.
package pipeline

import (
	"context"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
)

// stateStore is the slice of the filing state repository the orchestrator needs.
type stateStore interface {
	Replay(ctx context.Context, sourceKey string) (domain.Filing, error)
	Transition(ctx context.Context, sourceKey string, newStatus domain.Status) error
	MarkDeadLetter(ctx context.Context, sourceKey, reason, errDetail string) error
	GetAnalysis(ctx context.Context, sourceKey string) (domain.Analysis, error)
	AppendEvent(ctx context.Context, topic, source, detail string) error
}

// ingestor is the ingestion stage surface.
type ingestor interface {
	RunCycle(ctx context.Context, tickers []string) (ingest.Summary, error)
	Refetch(ctx context.Context, f *domain.Filing) (*domain.RawDocument, error)
}

// extractor is the extraction stage surface.
type extractor interface {
	HandleRawDocument(ctx context.Context, doc *domain.RawDocument) error
}

// indexer is the indexing stage surface.
type indexer interface {
	HandleAnalysis(ctx context.Context, a *domain.Analysis) error
}
