// Package index is the pipeline stage that turns a structured analysis into
// embedded, searchable chunks in both the semantic and lexical indexes.
package index

import (
	"context"

	"github.com/finsight-ai/finsight/internal/domain"
)

// chunkStore persists chunk records and serves them back for rebuilds.
type chunkStore interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	All(ctx context.Context) ([]domain.Chunk, error)
}

// lexicalIndex is the rebuildable keyword index.
type lexicalIndex interface {
	Rebuild(chunks []domain.Chunk)
}

// stateStore is the slice of the filing state repository this stage needs.
type stateStore interface {
	Transition(ctx context.Context, sourceKey string, newStatus domain.Status) error
	MarkDeadLetter(ctx context.Context, sourceKey, reason, errDetail string) error
}

// publisher emits stage-completion events onto the bus.
type publisher interface {
	Publish(topic, source string, payload any)
}
