package retrieval

import (
	"sort"

	"github.com/finsight-ai/finsight/internal/domain"
)

// rrfK dampens the gap between adjacent ranks. 60 is the constant from the
// original reciprocal rank fusion paper.
const rrfK = 60

// fuseRRF merges the semantic and lexical candidate lists by reciprocal rank
// fusion. Each list is first ordered by its own score, then every chunk
// contributes 1/(rrfK+rank) per list it appears in, with 1-based ranks.
//
// The result is fully ordered: fused score descending, then presence in both
// lists, then chunk ID. Equal inputs always produce equal output.
func fuseRRF(semantic, lex []domain.ScoredChunk) []domain.FusedHit {
	byID := make(map[string]*domain.FusedHit)

	for _, list := range []struct {
		hits     []domain.ScoredChunk
		semantic bool
	}{
		{rankByScore(semantic), true},
		{rankByScore(lex), false},
	} {
		for i, h := range list.hits {
			rank := i + 1
			fh, ok := byID[h.ChunkID]
			if !ok {
				fh = &domain.FusedHit{ChunkID: h.ChunkID}
				byID[h.ChunkID] = fh
			}
			fh.FusedScore += 1.0 / float64(rrfK+rank)
			if list.semantic {
				fh.SemanticRank = rank
			} else {
				fh.LexicalRank = rank
			}
		}
	}

	fused := make([]domain.FusedHit, 0, len(byID))
	for _, fh := range byID {
		fused = append(fused, *fh)
	}
	sort.Slice(fused, func(i, j int) bool {
		a, b := &fused[i], &fused[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.InBothLists() != b.InBothLists() {
			return a.InBothLists()
		}
		return a.ChunkID < b.ChunkID
	})
	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}

// rankByScore orders one list by its own score descending before ranks are
// assigned, so fusion never trusts upstream ordering. Ties within a list
// break by chunk ID to keep the whole pipeline deterministic.
func rankByScore(hits []domain.ScoredChunk) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
