package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/bus"
	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/logger"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
)

// Options controls the orchestrator.
type Options struct {
	// Tickers polled by the periodic ingestion cycle.
	Tickers []string
	// PollInterval between automatic cycles. Zero disables polling; cycles
	// can still be triggered through RunCycle.
	PollInterval time.Duration
	// ExtractWorkers bounds concurrent extraction handlers. Extraction is
	// model-call heavy, so this is the pipeline's main throughput knob.
	ExtractWorkers int
	// IndexWorkers bounds concurrent indexing handlers.
	IndexWorkers int
}

// DefaultOptions are used where fields are left zero.
var DefaultOptions = Options{
	ExtractWorkers: 4,
	IndexWorkers:   2,
}

// Orchestrator subscribes the processing stages to the bus, runs the
// periodic ingestion poll, and serves replay requests.
type Orchestrator struct {
	bus    *bus.Bus
	state  stateStore
	ingest ingestor
	opts   Options
	logger *zap.Logger

	cancelPoll context.CancelFunc
	pollDone   chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
}

// New wires the stage handlers to the bus and returns a started orchestrator.
// The periodic poll does not run until Start is called.
func New(b *bus.Bus, state stateStore, ing ingestor, ext extractor, idx indexer, opts Options, log *zap.Logger) *Orchestrator {
	if opts.ExtractWorkers <= 0 {
		opts.ExtractWorkers = DefaultOptions.ExtractWorkers
	}
	if opts.IndexWorkers <= 0 {
		opts.IndexWorkers = DefaultOptions.IndexWorkers
	}

	o := &Orchestrator{
		bus:    b,
		state:  state,
		ingest: ing,
		opts:   opts,
		logger: log,
	}

	b.SubscribePool(bus.TopicFilingFound, "extract", opts.ExtractWorkers, func(ctx context.Context, msg bus.Message) error {
		doc, ok := msg.Payload.(*domain.RawDocument)
		if !ok {
			log.Error("unexpected payload type on filing.found",
				zap.String("message_id", msg.ID))
			return nil
		}
		return ext.HandleRawDocument(logger.ContextWithLogger(ctx, log), doc)
	})

	b.SubscribePool(bus.TopicAnalysisCompleted, "index", opts.IndexWorkers, func(ctx context.Context, msg bus.Message) error {
		a, ok := msg.Payload.(*domain.Analysis)
		if !ok {
			log.Error("unexpected payload type on analysis.completed",
				zap.String("message_id", msg.ID))
			return nil
		}
		return idx.HandleAnalysis(logger.ContextWithLogger(ctx, log), a)
	})

	b.Subscribe(bus.TopicDeadLetter, "dead-letter", o.handleDeadLetter)
	b.Subscribe(bus.TopicWildcard, "audit", o.handleAudit)

	return o
}

// handleDeadLetter marks the filing behind an exhausted delivery as
// DEAD_LETTER. Stage-level failures (validation, indexing) dead-letter
// themselves before returning nil, so anything arriving here is a transport
// failure that outlived the bus retry bound.
func (o *Orchestrator) handleDeadLetter(ctx context.Context, msg bus.Message) error {
	sourceKey := payloadSourceKey(msg.Payload)
	if sourceKey == "" {
		o.logger.Error("dead-letter message without source key",
			zap.String("message_id", msg.ID),
			zap.String("failure", msg.FailureReason))
		return nil
	}

	err := o.state.MarkDeadLetter(ctx, sourceKey, domain.ReasonDeliveryExhausted, msg.FailureReason)
	switch {
	case err == nil:
		o.logger.Warn("filing dead-lettered after delivery exhaustion",
			zap.String("source_key", sourceKey),
			zap.Int("attempts", msg.Attempts),
			zap.String("failure", msg.FailureReason))
	case errors.Is(err, domain.ErrInvalidTransition):
		// Already terminal: the stage dead-lettered it before the bus did.
		o.logger.Debug("dead-letter already recorded",
			zap.String("source_key", sourceKey))
	default:
		o.logger.Error("recording dead letter failed",
			zap.String("source_key", sourceKey), zap.Error(err))
	}
	return nil
}

// handleAudit appends every bus delivery to the durable event log. Audit is
// best-effort; a log write failure never triggers redelivery.
func (o *Orchestrator) handleAudit(ctx context.Context, msg bus.Message) error {
	detail := payloadSourceKey(msg.Payload)
	if msg.Topic == bus.TopicDeadLetter && msg.FailureReason != "" {
		detail = detail + " " + msg.FailureReason
	}
	if err := o.state.AppendEvent(ctx, msg.Topic, msg.Source, detail); err != nil {
		o.logger.Warn("event log append failed",
			zap.String("topic", msg.Topic), zap.Error(err))
	}
	return nil
}

// payloadSourceKey extracts the filing identity from any stage payload.
func payloadSourceKey(payload any) string {
	switch p := payload.(type) {
	case *domain.RawDocument:
		return p.SourceKey
	case *domain.Analysis:
		return p.SourceKey
	case string:
		return p
	default:
		return ""
	}
}

// Start launches the periodic ingestion poll. No-op when PollInterval is zero.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		if o.opts.PollInterval <= 0 {
			o.logger.Info("ingestion polling disabled")
			return
		}
		pollCtx, cancel := context.WithCancel(logger.ContextWithLogger(context.Background(), o.logger))
		o.cancelPoll = cancel
		o.pollDone = make(chan struct{})
		go o.poll(pollCtx)
	})
}

func (o *Orchestrator) poll(ctx context.Context) {
	defer close(o.pollDone)
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	o.logger.Info("ingestion polling started",
		zap.Duration("interval", o.opts.PollInterval),
		zap.Strings("tickers", o.opts.Tickers))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := o.ingest.RunCycle(ctx, o.opts.Tickers)
			if err != nil {
				o.logger.Error("scheduled ingestion cycle failed", zap.Error(err))
				continue
			}
			o.logger.Info("scheduled ingestion cycle completed",
				zap.Int("processed", sum.Processed),
				zap.Int("new_filings", sum.NewFilings))
		}
	}
}

// RunCycle triggers one ingestion cycle on demand. tickers overrides the
// configured watch list when non-empty.
func (o *Orchestrator) RunCycle(ctx context.Context, tickers []string) (ingest.Summary, error) {
	if len(tickers) == 0 {
		tickers = o.opts.Tickers
	}
	return o.ingest.RunCycle(ctx, tickers)
}

// Replay re-enters a dead-lettered filing into the pipeline. When a saved
// analysis exists the extraction work is not repeated: the filing jumps
// straight back to ANALYZED and only indexing reruns. Otherwise the source
// document is refetched and the filing restarts from extraction.
func (o *Orchestrator) Replay(ctx context.Context, sourceKey string) (domain.Filing, error) {
	log := logger.FromContext(ctx)

	filing, err := o.state.Replay(ctx, sourceKey)
	if err != nil {
		return domain.Filing{}, err
	}

	analysis, err := o.state.GetAnalysis(ctx, sourceKey)
	if err == nil {
		if terr := o.state.Transition(ctx, sourceKey, domain.StatusAnalyzed); terr != nil {
			return domain.Filing{}, fmt.Errorf("replaying %s: %w", sourceKey, terr)
		}
		filing.Status = domain.StatusAnalyzed
		log.Info("replay resuming from saved analysis",
			zap.String("source_key", sourceKey),
			zap.Int("retry_count", filing.RetryCount))
		o.bus.Publish(bus.TopicAnalysisCompleted, "replay", &analysis)
		return filing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Filing{}, fmt.Errorf("replaying %s: %w", sourceKey, err)
	}

	doc, err := o.ingest.Refetch(ctx, &filing)
	if err != nil {
		return domain.Filing{}, fmt.Errorf("replaying %s: %w", sourceKey, err)
	}
	log.Info("replay refetched source document",
		zap.String("source_key", sourceKey),
		zap.Int("retry_count", filing.RetryCount))
	o.bus.Publish(bus.TopicFilingFound, "replay", doc)
	return filing, nil
}

// Stop halts the periodic poll. Bus shutdown is owned by the caller so the
// queues can drain after polling stops.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.cancelPoll != nil {
			o.cancelPoll()
			<-o.pollDone
		}
	})
}
