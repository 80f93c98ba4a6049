package retrieval

import (
	"context"
	"fmt"

	"github.com/finsight-ai/finsight/internal/domain"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type mockSemantic struct {
	hits []domain.ScoredChunk
	err  error

	gotTicker string
	gotK      int
}

func (m *mockSemantic) SearchKNN(_ context.Context, _ []float32, k int, ticker string) ([]domain.ScoredChunk, error) {
	m.gotK = k
	m.gotTicker = ticker
	return m.hits, m.err
}

type mockLexical struct {
	hits []domain.ScoredChunk
}

func (m *mockLexical) Search(_ string, _ int, _ string) []domain.ScoredChunk {
	return m.hits
}

type mockChunkLoader struct {
	chunks map[string]domain.Chunk
	err    error
}

func (m *mockChunkLoader) Get(_ context.Context, ids []string) ([]domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Chunk
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func loaderFor(ids ...string) *mockChunkLoader {
	chunks := make(map[string]domain.Chunk, len(ids))
	for _, id := range ids {
		chunks[id] = domain.Chunk{ID: id, Ticker: "ACME", Text: fmt.Sprintf("text for %s", id)}
	}
	return &mockChunkLoader{chunks: chunks}
}
