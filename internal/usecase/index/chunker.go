package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/finsight-ai/finsight/internal/domain"
)

// BuildChunks splits an analysis into retrieval chunks. Metric chunks carry
// one metric each: short and high signal-density. Narrative chunks group a
// whole section, with forward guidance as its own trailing section.
//
// Ordinals are positional within each class, so the same analysis always
// yields the same chunk IDs.
func BuildChunks(a *domain.Analysis) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(a.KeyMetrics)+len(a.NarrativeSummary)+1)

	for i := range a.KeyMetrics {
		chunks = append(chunks, newChunk(a, domain.ChunkMetric, i, metricText(&a.KeyMetrics[i])))
	}

	ordinal := 0
	for i := range a.NarrativeSummary {
		sec := &a.NarrativeSummary[i]
		text := strings.TrimSpace(strings.Join(sec.Sentences, " "))
		if text == "" {
			continue
		}
		chunks = append(chunks, newChunk(a, domain.ChunkNarrative, ordinal, sec.Name+": "+text))
		ordinal++
	}
	if text := guidanceText(a.ForwardGuidance); text != "" {
		chunks = append(chunks, newChunk(a, domain.ChunkNarrative, ordinal, text))
	}
	return chunks
}

func newChunk(a *domain.Analysis, class domain.ChunkClass, ordinal int, text string) domain.Chunk {
	return domain.Chunk{
		ID:        domain.ChunkID(a.SourceKey, class, ordinal),
		Class:     class,
		Text:      text,
		SourceKey: a.SourceKey,
		Ticker:    a.Ticker,
	}
}

func metricText(m *domain.KeyMetric) string {
	if m.Ambiguous {
		return fmt.Sprintf("%s: reported, magnitude ambiguous", m.Name)
	}
	text := m.Name + ": " + strconv.FormatFloat(m.Value, 'f', -1, 64)
	if m.Unit != "" {
		text += " " + m.Unit
	}
	return text
}

func guidanceText(guidance []domain.Guidance) string {
	if len(guidance) == 0 {
		return ""
	}
	parts := make([]string, 0, len(guidance))
	for _, g := range guidance {
		s := strings.TrimSpace(g.Statement)
		if s == "" {
			continue
		}
		if g.Metric != "" {
			s = g.Metric + " - " + s
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return ""
	}
	return "forward guidance: " + strings.Join(parts, " ")
}
