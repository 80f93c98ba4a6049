package state

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/finsight-ai/finsight/internal/db"
)

// fakeStore is an in-memory stand-in for the Redis store, enough to exercise
// guard keys, hash records and the event stream.
type fakeStore struct {
	mu      sync.Mutex
	kv      map[string][]byte
	hashes  map[string]map[string]string
	streams map[string][]db.StreamEntry
	nextID  int

	failSetNX bool
	failHSet  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:      make(map[string][]byte),
		hashes:  make(map[string]map[string]string),
		streams: make(map[string][]db.StreamEntry),
	}
}

func (s *fakeStore) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetNX {
		return false, fmt.Errorf("setnx failed")
	}
	if _, ok := s.kv[key]; ok {
		return false, nil
	}
	s.kv[key] = value
	return true, nil
}

func (s *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHSet {
		return fmt.Errorf("hset failed")
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (s *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		m, err := s.HGetAll(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *fakeStore) XAdd(_ context.Context, key string, fields map[string]string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	s.streams[key] = append(s.streams[key], db.StreamEntry{
		ID:     fmt.Sprintf("%d-0", s.nextID),
		Fields: cp,
	})
	return nil
}

func (s *fakeStore) XRevRangeN(_ context.Context, key string, count int) ([]db.StreamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.streams[key]
	var out []db.StreamEntry
	for i := len(entries) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}
