// Package extract is the pipeline stage that turns raw filing text into a
// validated structured analysis via a model call, with one bounded
// reflection retry before giving up.
package extract

import (
	"context"

	"github.com/finsight-ai/finsight/internal/domain"
)

// Extractor invokes the structured-extraction model. critique is empty on
// the first attempt; on the reflection retry it names the specific
// validation failures of the previous attempt.
type Extractor interface {
	Extract(ctx context.Context, doc *domain.RawDocument, critique string) (domain.ExtractionDraft, error)
}

// stateStore is the slice of the filing state repository this stage needs.
type stateStore interface {
	Transition(ctx context.Context, sourceKey string, newStatus domain.Status) error
	MarkDeadLetter(ctx context.Context, sourceKey, reason, errDetail string) error
	SaveAnalysis(ctx context.Context, sourceKey string, a *domain.Analysis) error
}

// publisher emits stage-completion events onto the bus.
type publisher interface {
	Publish(topic, source string, payload any)
}
