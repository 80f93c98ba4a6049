// Package chunk persists retrieval chunks as Redis hashes and maintains the
// semantic HNSW index over them. Chunk IDs are deterministic, so re-indexing
// a filing upserts in place instead of accumulating near-duplicates.
package chunk

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/finsight-ai/finsight/internal/db"
	"github.com/finsight-ai/finsight/internal/domain"
)

// store is the consumer interface for chunk persistence and KNN search.
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

const (
	chunkKeyPart = "chunk:"
	indexSuffix  = "chunks-idx"

	defaultHNSWM           = 16
	defaultHNSWEFConstruct = 200
)

// HNSWConfig overrides graph construction parameters of the semantic index.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements chunk persistence on db.Store.
type Repo struct {
	store  store
	prefix string
	hnsw   HNSWConfig
}

// New creates a chunk repository. prefix namespaces keys and the index name.
func New(s store, prefix string) *Repo {
	return &Repo{
		store:  s,
		prefix: prefix,
		hnsw:   HNSWConfig{M: defaultHNSWM, EFConstruct: defaultHNSWEFConstruct},
	}
}

// WithHNSW overrides HNSW construction parameters. Only affects index
// creation; an existing index keeps its parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

func (r *Repo) indexName() string {
	return strings.ReplaceAll(r.prefix, ":", "-") + indexSuffix
}

func (r *Repo) chunkKey(id string) string {
	return r.prefix + chunkKeyPart + id
}

// EnsureIndex creates the semantic index if it does not exist yet. Safe to
// call on every startup.
func (r *Repo) EnsureIndex(ctx context.Context, vectorDim int) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.prefix + chunkKeyPart},
		Fields: []db.IndexField{
			{Name: fieldTicker, Type: db.IndexFieldTag},
			{Name: fieldSourceKey, Type: db.IndexFieldTag},
			{Name: fieldClass, Type: db.IndexFieldTag},
			{Name: fieldText, Type: db.IndexFieldText},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorDim:         vectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

// Upsert writes chunks in a single pipelined round trip. Existing records
// with the same deterministic ID are overwritten.
func (r *Repo) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			return fmt.Errorf("%w: chunk without id for %s", domain.ErrInvalidPayload, c.SourceKey)
		}
		items = append(items, db.HashSetItem{
			Key:    r.chunkKey(c.ID),
			Fields: chunkToFields(c, i),
		})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(chunks), err)
	}
	return nil
}

// All returns every stored chunk without vectors, ordered by ID for a
// deterministic rebuild. This is the lexical index's source of truth.
func (r *Repo) All(ctx context.Context) ([]domain.Chunk, error) {
	keys, err := r.store.Scan(ctx, r.prefix+chunkKeyPart+"*")
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	out := make([]domain.Chunk, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		out = append(out, chunkFromFields(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchKNN returns the k nearest chunks by cosine similarity, optionally
// pre-filtered to a single ticker.
func (r *Repo) SearchKNN(ctx context.Context, vector []float32, k int, ticker string) ([]domain.ScoredChunk, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		TickerFilter: ticker,
		ReturnFields: []string{fieldID},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := make([]domain.ScoredChunk, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := e.Fields[fieldID]
		if id == "" {
			id = strings.TrimPrefix(e.Key, r.prefix+chunkKeyPart)
		}
		hits = append(hits, domain.ScoredChunk{ChunkID: id, Score: e.Score})
	}
	return hits, nil
}

// Get returns the chunks for the given IDs, without vectors, in input order.
// Unknown IDs are skipped.
func (r *Repo) Get(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.chunkKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read %d chunks: %w", len(ids), err)
	}
	out := make([]domain.Chunk, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		out = append(out, chunkFromFields(m))
	}
	return out, nil
}
