package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Message is one delivery of a published payload. Attempt starts at 1.
type Message struct {
	ID          string
	Topic       string
	Data        []byte
	Attempt     int
	PublishedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s message %s: %w", m.Topic, m.ID, err)
	}
	return nil
}

// Handler processes a message. A non-nil error schedules a redelivery until
// the attempt budget is exhausted.
type Handler func(ctx context.Context, msg Message) error

// Publisher publishes JSON payloads to a topic, creating it if absent.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

type Config struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	HandlerTimeout time.Duration
	QueueSize      int
	Workers        int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseBackoff:    500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		HandlerTimeout: 5 * time.Minute,
		QueueSize:      256,
		Workers:        4,
	}
}

// SubscribeOption tunes one subscription.
type SubscribeOption func(*subscription)

// WithTimeout overrides the per-delivery handler timeout.
func WithTimeout(d time.Duration) SubscribeOption {
	return func(s *subscription) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWorkers sets how many deliveries of the subscription run concurrently.
func WithWorkers(n int) SubscribeOption {
	return func(s *subscription) {
		if n > 0 {
			s.workers = n
		}
	}
}

type Stats struct {
	Topics      int
	Published   uint64
	Delivered   uint64
	Failed      uint64
	Redelivered uint64
	Dropped     uint64
}

var ErrClosed = errors.New("topic broker closed")

// Broker is an in-process topic broker with at-least-once delivery to every
// subscription of a topic.
type Broker struct {
	cfg Config

	mu     sync.RWMutex
	topics map[string]*topicState
	closed bool
	wg     sync.WaitGroup

	published   atomic.Uint64
	delivered   atomic.Uint64
	failed      atomic.Uint64
	redelivered atomic.Uint64
	dropped     atomic.Uint64
}

type topicState struct {
	name   string
	nextID int
	subs   map[int]*subscription
}

type subscription struct {
	broker  *Broker
	topic   string
	handler Handler
	timeout time.Duration
	workers int

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

func NewBroker(cfg Config) *Broker {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Broker{cfg: cfg, topics: make(map[string]*topicState)}
}

// topicLocked returns the named topic, creating it on first use.
func (b *Broker) topicLocked(name string) *topicState {
	t, ok := b.topics[name]
	if !ok {
		t = &topicState{name: name, subs: make(map[int]*subscription)}
		b.topics[name] = t
		log.Printf("topic created name=%s", name)
	}
	return t
}

// Subscribe attaches handler to topic and returns a function that detaches it.
func (b *Broker) Subscribe(topic string, handler Handler, opts ...SubscribeOption) (func(), error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	sub := &subscription{
		broker:  b,
		topic:   topic,
		handler: handler,
		timeout: b.cfg.HandlerTimeout,
		workers: b.cfg.Workers,
		queue:   make(chan Message, b.cfg.QueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	t := b.topicLocked(topic)
	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	b.mu.Unlock()

	for i := 0; i < sub.workers; i++ {
		b.wg.Add(1)
		go sub.run()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(t.subs, id)
			b.mu.Unlock()
			sub.stop()
		})
	}, nil
}

// Publish encodes v as JSON and delivers it to every current subscription.
// A topic without subscriptions accepts and drops the message.
func (b *Broker) Publish(ctx context.Context, topic string, v any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	t := b.topicLocked(topic)
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	b.published.Add(1)
	msg := Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Data:        data,
		Attempt:     1,
		PublishedAt: time.Now().UTC(),
	}
	if len(subs) == 0 {
		b.dropped.Add(1)
		return nil
	}
	for _, s := range subs {
		if err := s.enqueue(ctx, msg); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}
	return nil
}

func (s *subscription) enqueue(ctx context.Context, msg Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.broker.dropped.Add(1)
		return nil
	}
	select {
	case s.queue <- msg:
		return nil
	case <-s.done:
		s.broker.dropped.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.closed = true
	s.mu.Unlock()
}

func (s *subscription) run() {
	defer s.broker.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			s.deliver(msg)
		}
	}
}

func (s *subscription) deliver(msg Message) {
	b := s.broker
	start := time.Now()
	err := s.invoke(msg)
	if err == nil {
		b.delivered.Add(1)
		return
	}
	b.failed.Add(1)
	if msg.Attempt >= b.cfg.MaxAttempts {
		b.dropped.Add(1)
		log.Printf("topic=%s message=%s attempt=%d duration_ms=%d status=dropped err=%v",
			msg.Topic, msg.ID, msg.Attempt, time.Since(start).Milliseconds(), err)
		return
	}
	delay := b.backoff(msg.Attempt)
	log.Printf("topic=%s message=%s attempt=%d duration_ms=%d status=retry_in_%s err=%v",
		msg.Topic, msg.ID, msg.Attempt, time.Since(start).Milliseconds(), delay, err)
	next := msg
	next.Attempt++
	time.AfterFunc(delay, func() {
		b.redelivered.Add(1)
		_ = s.enqueue(context.Background(), next)
	})
}

func (s *subscription) invoke(msg Message) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, msg)
}

func (b *Broker) backoff(attempt int) time.Duration {
	d := b.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.cfg.MaxBackoff {
			return b.cfg.MaxBackoff
		}
	}
	return d
}

// Close stops every subscription and waits for in-flight deliveries until ctx
// is done. Queued and scheduled redeliveries are dropped.
func (b *Broker) Close(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0)
	for _, t := range b.topics {
		for _, s := range t.subs {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (b *Broker) Stats() Stats {
	b.mu.RLock()
	n := len(b.topics)
	b.mu.RUnlock()
	return Stats{
		Topics:      n,
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Failed:      b.failed.Load(),
		Redelivered: b.redelivered.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// HasTopic reports whether the topic has been created.
func (b *Broker) HasTopic(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.topics[strings.TrimSpace(name)]
	return ok
}
