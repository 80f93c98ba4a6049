// Package state is the durable record of each filing's lifecycle status,
// keyed by the natural source key. It exclusively owns Document Record
// transitions; pipeline stages report completion, this store applies it.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/internal/db"
	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/metrics"
)

// store is the consumer interface for filing state persistence.
type store interface {
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	XAdd(ctx context.Context, key string, fields map[string]string, maxLen int64) error
	XRevRangeN(ctx context.Context, key string, count int) ([]db.StreamEntry, error)
}

// Event is one audit entry of the append-only event log.
type Event struct {
	ID     string
	Topic  string
	Source string
	Detail string
}

const (
	filingKeyPart = "filing:"
	guardKeyPart  = "filingkey:"
	eventsKeyPart = "events"

	eventLogMaxLen = 10000
)

// Repo implements the processing state store on db.Store.
type Repo struct {
	store  store
	prefix string

	// keyLocks serializes transitions per source key so concurrent stage
	// completions for the same filing cannot interleave read-check-write.
	keyLocks sync.Map
}

// New creates a state repository. prefix namespaces all keys.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) filingKey(sourceKey string) string {
	return r.prefix + filingKeyPart + sourceKey
}

func (r *Repo) lock(sourceKey string) *sync.Mutex {
	mu, _ := r.keyLocks.LoadOrStore(sourceKey, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// RecordIfNew creates the filing record if its source key has never been
// seen. Returns false when the key already exists: first writer wins, later
// writers observe the existing record and skip.
func (r *Repo) RecordIfNew(ctx context.Context, f domain.Filing) (bool, error) {
	if f.Status == "" {
		f.Status = domain.StatusIngested
	}
	if err := f.Validate(); err != nil {
		return false, err
	}

	created, err := r.store.SetNX(ctx, r.prefix+guardKeyPart+f.SourceKey, []byte("1"))
	if err != nil {
		return false, fmt.Errorf("dedup guard %s: %w", f.SourceKey, err)
	}
	if !created {
		return false, nil
	}

	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	if err := r.store.HSet(ctx, r.filingKey(f.SourceKey), filingToFields(&f)); err != nil {
		return false, fmt.Errorf("write filing %s: %w", f.SourceKey, err)
	}
	return true, nil
}

// Get returns a filing by source key.
func (r *Repo) Get(ctx context.Context, sourceKey string) (domain.Filing, error) {
	fields, err := r.store.HGetAll(ctx, r.filingKey(sourceKey))
	if err != nil {
		return domain.Filing{}, fmt.Errorf("read filing %s: %w", sourceKey, err)
	}
	if len(fields) == 0 {
		return domain.Filing{}, domain.ErrFilingNotFound
	}
	return filingFromFields(fields), nil
}

// ListByStatus returns all filings currently in the given status.
func (r *Repo) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Filing, error) {
	keys, err := r.store.Scan(ctx, r.prefix+filingKeyPart+"*")
	if err != nil {
		return nil, fmt.Errorf("scan filings: %w", err)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read filings: %w", err)
	}

	var out []domain.Filing
	for _, fields := range maps {
		if len(fields) == 0 {
			continue
		}
		f := filingFromFields(fields)
		if status == "" || f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

// CountByStatus aggregates filing counts for the ops surface.
func (r *Repo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	all, err := r.ListByStatus(ctx, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Status]int)
	for _, f := range all {
		counts[f.Status]++
	}
	return counts, nil
}

// Transition moves a filing to newStatus. Transitions outside the table are
// rejected with ErrInvalidTransition, never silently applied.
func (r *Repo) Transition(ctx context.Context, sourceKey string, newStatus domain.Status) error {
	mu := r.lock(sourceKey)
	mu.Lock()
	defer mu.Unlock()

	f, err := r.Get(ctx, sourceKey)
	if err != nil {
		return err
	}
	if !domain.CanTransition(f.Status, newStatus) {
		return &domain.InvalidTransitionError{SourceKey: sourceKey, From: f.Status, To: newStatus}
	}

	if err := r.update(ctx, sourceKey, map[string]string{
		"status":     string(newStatus),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	metrics.StageTransitionsTotal.WithLabelValues(string(newStatus)).Inc()
	return nil
}

// MarkDeadLetter moves a filing to DEAD_LETTER with a machine-readable reason
// and the last error for operator diagnosis.
func (r *Repo) MarkDeadLetter(ctx context.Context, sourceKey, reason, errDetail string) error {
	mu := r.lock(sourceKey)
	mu.Lock()
	defer mu.Unlock()

	f, err := r.Get(ctx, sourceKey)
	if err != nil {
		return err
	}
	if !domain.CanTransition(f.Status, domain.StatusDeadLetter) {
		return &domain.InvalidTransitionError{SourceKey: sourceKey, From: f.Status, To: domain.StatusDeadLetter}
	}

	if err := r.update(ctx, sourceKey, map[string]string{
		"status":     string(domain.StatusDeadLetter),
		"reason":     reason,
		"last_error": errDetail,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	metrics.DeadLettersTotal.WithLabelValues(reason).Inc()
	return nil
}

// Replay resets a dead-lettered filing to INGESTED for reprocessing. The
// retry count is incremented and the prior reason and error are retained for
// audit. Replay of a record in any other state is a policy denial.
func (r *Repo) Replay(ctx context.Context, sourceKey string) (domain.Filing, error) {
	mu := r.lock(sourceKey)
	mu.Lock()
	defer mu.Unlock()

	f, err := r.Get(ctx, sourceKey)
	if err != nil {
		return domain.Filing{}, err
	}
	if f.Status != domain.StatusDeadLetter {
		return domain.Filing{}, fmt.Errorf("%w: %s is %s, not %s",
			domain.ErrReplayDenied, sourceKey, f.Status, domain.StatusDeadLetter)
	}

	f.Status = domain.StatusIngested
	f.RetryCount++
	f.UpdatedAt = time.Now().UTC()

	err = r.update(ctx, sourceKey, map[string]string{
		"status":      string(f.Status),
		"retry_count": strconv.Itoa(f.RetryCount),
		"updated_at":  f.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return domain.Filing{}, err
	}
	return f, nil
}

func (r *Repo) update(ctx context.Context, sourceKey string, fields map[string]string) error {
	if err := r.store.HSet(ctx, r.filingKey(sourceKey), fields); err != nil {
		return fmt.Errorf("update filing %s: %w", sourceKey, err)
	}
	return nil
}

// SaveAnalysis persists the structured analysis as the filing's terminal
// payload. Replayed indexing reads it back instead of re-running extraction.
func (r *Repo) SaveAnalysis(ctx context.Context, sourceKey string, a *domain.Analysis) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis %s: %w", sourceKey, err)
	}
	return r.update(ctx, sourceKey, map[string]string{"analysis": string(raw)})
}

// GetAnalysis returns the persisted analysis, or ErrNotFound when the filing
// has none yet.
func (r *Repo) GetAnalysis(ctx context.Context, sourceKey string) (domain.Analysis, error) {
	fields, err := r.store.HGetAll(ctx, r.filingKey(sourceKey))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("read filing %s: %w", sourceKey, err)
	}
	if len(fields) == 0 {
		return domain.Analysis{}, domain.ErrFilingNotFound
	}
	raw, ok := fields["analysis"]
	if !ok || raw == "" {
		return domain.Analysis{}, fmt.Errorf("%w: no analysis for %s", domain.ErrNotFound, sourceKey)
	}
	var a domain.Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode analysis %s: %w", sourceKey, err)
	}
	return a, nil
}

// AppendEvent records one bus message in the append-only event log.
func (r *Repo) AppendEvent(ctx context.Context, topic, source, detail string) error {
	err := r.store.XAdd(ctx, r.prefix+eventsKeyPart, map[string]string{
		"topic":  topic,
		"source": source,
		"detail": detail,
	}, eventLogMaxLen)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest count log entries, newest first.
func (r *Repo) RecentEvents(ctx context.Context, count int) ([]Event, error) {
	entries, err := r.store.XRevRangeN(ctx, r.prefix+eventsKeyPart, count)
	if err != nil {
		// An absent stream reads as empty, not as an error.
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read events: %w", err)
	}
	out := make([]Event, 0, len(entries))
	for _, e := range entries {
		out = append(out, Event{
			ID:     e.ID,
			Topic:  e.Fields["topic"],
			Source: e.Fields["source"],
			Detail: e.Fields["detail"],
		})
	}
	return out, nil
}

func filingToFields(f *domain.Filing) map[string]string {
	return map[string]string{
		"source_key":  f.SourceKey,
		"ticker":      strings.ToUpper(f.Ticker),
		"source_url":  f.SourceURL,
		"filing_type": f.FilingType,
		"status":      string(f.Status),
		"reason":      f.Reason,
		"last_error":  f.LastError,
		"retry_count": strconv.Itoa(f.RetryCount),
		"created_at":  f.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  f.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func filingFromFields(m map[string]string) domain.Filing {
	retries, _ := strconv.Atoi(m["retry_count"])
	created, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updated, _ := time.Parse(time.RFC3339Nano, m["updated_at"])
	return domain.Filing{
		SourceKey:  m["source_key"],
		Ticker:     m["ticker"],
		SourceURL:  m["source_url"],
		FilingType: m["filing_type"],
		Status:     domain.Status(m["status"]),
		Reason:     m["reason"],
		LastError:  m["last_error"],
		RetryCount: retries,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
}
