package redis

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/finsight-ai/finsight/internal/db"
)

// XAdd appends an entry to a stream, trimming to approximately maxLen entries
// when maxLen > 0.
func (s *Store) XAdd(ctx context.Context, key string, fields map[string]string, maxLen int64) error {
	args := []string{key}
	if maxLen > 0 {
		args = append(args, "MAXLEN", "~", strconv.FormatInt(maxLen, 10))
	}
	args = append(args, "*")
	for k, v := range fields {
		args = append(args, k, v)
	}

	cmd := s.b().Arbitrary("XADD").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAdd, Err: err}
	}
	return nil
}

// XRevRangeN returns the newest count entries of a stream, newest first.
func (s *Store) XRevRangeN(ctx context.Context, key string, count int) ([]db.StreamEntry, error) {
	cmd := s.b().Arbitrary("XREVRANGE").
		Args(key, "+", "-", "COUNT", strconv.Itoa(count)).
		Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpXRevRange, Err: err}
	}

	entries := make([]db.StreamEntry, 0, len(raw))
	for _, item := range raw {
		pair, err := item.ToArray()
		if err != nil || len(pair) != 2 {
			continue
		}
		id, err := pair[0].ToString()
		if err != nil {
			continue
		}
		fieldList, err := pair[1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, db.StreamEntry{
			ID:     id,
			Fields: parseFieldPairs(fieldList),
		})
	}
	return entries, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
