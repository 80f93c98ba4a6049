// Package lexical is the in-memory keyword index over chunk text. It is a
// pure cache: the durable chunk records are the source of truth, and the
// whole index is rebuilt from them on startup and after each index cycle.
//
// Rebuilds produce a fresh immutable snapshot that is swapped in atomically,
// so queries never observe a partially built index.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/finsight-ai/finsight/internal/domain"
)

// BM25 free parameters, standard Robertson/Walker values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type document struct {
	id     string
	ticker string
	terms  map[string]int
	length int
}

// snapshot is one immutable generation of the index.
type snapshot struct {
	docs   []document
	df     map[string]int
	avgLen float64
}

// Index serves BM25 queries over the current snapshot.
type Index struct {
	current atomic.Pointer[snapshot]
}

// New returns an empty index. Queries against it return no hits until the
// first Rebuild.
func New() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{df: make(map[string]int)})
	return idx
}

// Rebuild replaces the entire index with one built from chunks. In-flight
// queries keep reading the previous snapshot.
func (idx *Index) Rebuild(chunks []domain.Chunk) {
	snap := &snapshot{
		docs: make([]document, 0, len(chunks)),
		df:   make(map[string]int),
	}

	var totalLen int
	for i := range chunks {
		c := &chunks[i]
		tokens := tokenize(c.Text)
		if len(tokens) == 0 {
			continue
		}
		terms := make(map[string]int, len(tokens))
		for _, t := range tokens {
			terms[t]++
		}
		for t := range terms {
			snap.df[t]++
		}
		totalLen += len(tokens)
		snap.docs = append(snap.docs, document{
			id:     c.ID,
			ticker: c.Ticker,
			terms:  terms,
			length: len(tokens),
		})
	}
	if len(snap.docs) > 0 {
		snap.avgLen = float64(totalLen) / float64(len(snap.docs))
	}

	idx.current.Store(snap)
}

// Size returns the number of indexed chunks in the current snapshot.
func (idx *Index) Size() int {
	return len(idx.current.Load().docs)
}

// Search scores all chunks for query and returns up to k hits in descending
// score order, ties broken by chunk ID. ticker, when non-empty, restricts
// candidates before scoring so filtered-out chunks never occupy ranks.
func (idx *Index) Search(query string, k int, ticker string) []domain.ScoredChunk {
	snap := idx.current.Load()
	tokens := tokenize(query)
	if len(tokens) == 0 || len(snap.docs) == 0 || k <= 0 {
		return nil
	}

	// Candidate count after the ticker filter drives the IDF corpus size,
	// matching how a per-ticker index would score.
	n := 0
	for i := range snap.docs {
		if ticker == "" || snap.docs[i].ticker == ticker {
			n++
		}
	}
	if n == 0 {
		return nil
	}

	var hits []domain.ScoredChunk
	for i := range snap.docs {
		d := &snap.docs[i]
		if ticker != "" && d.ticker != ticker {
			continue
		}
		score := snap.score(d, tokens, n)
		if score > 0 {
			hits = append(hits, domain.ScoredChunk{ChunkID: d.id, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (s *snapshot) score(d *document, tokens []string, n int) float64 {
	var total float64
	for _, t := range tokens {
		tf := d.terms[t]
		if tf == 0 {
			continue
		}
		df := s.df[t]
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		if idf < 0 {
			idf = 0
		}
		norm := bm25K1 * (1 - bm25B + bm25B*float64(d.length)/s.avgLen)
		total += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + norm)
	}
	return total
}

// tokenize lowercases and splits on any non-alphanumeric rune. Single-rune
// tokens are kept: ticker symbols and metric abbreviations can be short.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
