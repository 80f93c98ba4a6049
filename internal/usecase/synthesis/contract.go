// Package synthesis turns fused retrieval evidence into a grounded answer.
// It is the only stage allowed to generate prose, and only from supplied
// context: when the evidence fails the relevance floor, the answer says so
// instead of guessing.
package synthesis

import (
	"context"

	"github.com/finsight-ai/finsight/internal/domain"
)

// Retriever supplies fused evidence for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question, ticker string) ([]domain.Evidence, error)
}

// Generator produces an answer from a question and an assembled context
// block. Implementations must answer only from the supplied context.
type Generator interface {
	Generate(ctx context.Context, question, contextBlock string) (string, error)
}
