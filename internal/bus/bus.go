// Package bus is the in-process publish/subscribe transport between pipeline
// stages. Each subscriber owns a FIFO queue drained by its own goroutine, so
// delivery order is per-subscriber-per-topic and a slow handler never blocks
// publishing on unrelated topics.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics published by the pipeline.
const (
	TopicFilingFound       = "filing.found"
	TopicAnalysisCompleted = "analysis.completed"
	TopicIndexCompleted    = "index.completed"
	TopicDeadLetter        = "dead.letter"

	// TopicWildcard subscribes to every topic. Used by the event-log audit tap.
	TopicWildcard = "*"
)

// Message is one bus delivery unit.
type Message struct {
	ID          string
	Topic       string
	Source      string
	Payload     any
	PublishedAt time.Time

	// Attempts and FailureReason are set by the bus when a message is routed
	// to the dead-letter topic after delivery exhaustion. The payload itself
	// travels unmodified.
	Attempts      int
	FailureReason string
}

// Handler consumes one message. A non-nil error triggers redelivery up to the
// bus retry bound.
type Handler func(ctx context.Context, msg Message) error

// Bus routes messages between stages with at-least-once delivery per subscriber.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string][]*subscriber
	wildcard []*subscriber
	closed   bool

	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
	wg          sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxAttempts sets the per-subscriber delivery bound (default 3).
func WithMaxAttempts(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the base redelivery backoff (default 250ms, linear).
func WithRetryDelay(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.retryDelay = d
		}
	}
}

// New creates a started bus.
func New(logger *zap.Logger, opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:        make(map[string][]*subscriber),
		maxAttempts: 3,
		retryDelay:  250 * time.Millisecond,
		logger:      logger,
		baseCtx:     ctx,
		cancelBase:  cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic. name identifies the subscriber in
// logs and dead-letter annotations. TopicWildcard receives every message.
func (b *Bus) Subscribe(topic, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	s := newSubscriber(topic, name, h, b)
	if topic == TopicWildcard {
		b.wildcard = append(b.wildcard, s)
	} else {
		b.subs[topic] = append(b.subs[topic], s)
	}

	b.wg.Add(1)
	go s.run()
}

// SubscribePool registers a handler drained by a fixed pool of workers
// sharing one queue. Deliveries start in publish order but may complete out
// of order; use Subscribe when strict per-topic ordering matters.
func (b *Bus) SubscribePool(topic, name string, workers int, h Handler) {
	if workers <= 1 {
		b.Subscribe(topic, name, h)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	s := newSubscriber(topic, name, h, b)
	if topic == TopicWildcard {
		b.wildcard = append(b.wildcard, s)
	} else {
		b.subs[topic] = append(b.subs[topic], s)
	}

	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.run()
	}
}

// Publish enqueues a payload for every subscriber of topic. It never blocks:
// each subscriber queue grows as needed and is drained independently.
func (b *Bus) Publish(topic, source string, payload any) {
	b.publish(Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Source:      source,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	})
}

func (b *Bus) publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs[msg.Topic] {
		s.enqueue(msg)
	}
	for _, s := range b.wildcard {
		s.enqueue(msg)
	}
}

// deadLetter republishes an exhausted message on the dead-letter topic,
// annotated with failure metadata. Dead-letter deliveries themselves are
// never re-routed, so a failing dead-letter handler cannot loop.
func (b *Bus) deadLetter(msg Message, subscriberName string, attempts int, lastErr error) {
	if msg.Topic == TopicDeadLetter {
		b.logger.Error("dead-letter handler exhausted retries, dropping",
			zap.String("message_id", msg.ID),
			zap.String("subscriber", subscriberName),
		)
		return
	}

	annotated := msg
	annotated.Attempts = attempts
	annotated.FailureReason = subscriberName + ": " + lastErr.Error()
	annotated.Topic = TopicDeadLetter

	b.logger.Warn("delivery exhausted, routing to dead letter",
		zap.String("message_id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.String("subscriber", subscriberName),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	b.publish(annotated)
}

// Close stops accepting messages, drains subscriber queues, and waits for
// in-flight handlers to return.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			s.close()
		}
	}
	for _, s := range b.wildcard {
		s.close()
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.cancelBase()
}

// subscriber owns one FIFO queue and one delivery goroutine.
type subscriber struct {
	topic   string
	name    string
	handler Handler
	bus     *Bus

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Message
	closing bool
}

func newSubscriber(topic, name string, h Handler, b *Bus) *subscriber {
	s := &subscriber{topic: topic, name: name, handler: h, bus: b}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) enqueue(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.queue = append(s.queue, msg)
	s.cond.Signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *subscriber) next() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closing {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

func (s *subscriber) run() {
	defer s.bus.wg.Done()
	for {
		msg, ok := s.next()
		if !ok {
			return
		}
		s.deliver(msg)
	}
}

func (s *subscriber) deliver(msg Message) {
	var lastErr error
	for attempt := 1; attempt <= s.bus.maxAttempts; attempt++ {
		lastErr = s.handler(s.bus.baseCtx, msg)
		if lastErr == nil {
			return
		}
		s.bus.logger.Warn("handler failed",
			zap.String("topic", msg.Topic),
			zap.String("subscriber", s.name),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < s.bus.maxAttempts {
			select {
			case <-s.bus.baseCtx.Done():
				return
			case <-time.After(s.bus.retryDelay * time.Duration(attempt)):
			}
		}
	}
	s.bus.deadLetter(msg, s.name, s.bus.maxAttempts, lastErr)
}
