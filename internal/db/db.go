// Package db defines the storage facade over Redis. Consumers depend on the
// narrow sub-interfaces, not on Store itself.
package db

import (
	"context"
	"time"
)

// Store is the full database facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	KVStore
	StreamStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore provides simple key-value operations. SetNX is the atomic
// first-writer-wins primitive behind ingestion deduplication.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// StreamEntry is one entry of an append-only stream.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// StreamStore provides append-only stream operations for the event log.
type StreamStore interface {
	XAdd(ctx context.Context, key string, fields map[string]string, maxLen int64) error
	XRevRangeN(ctx context.Context, key string, count int) ([]StreamEntry, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides vector similarity search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
