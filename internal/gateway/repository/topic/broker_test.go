package topic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testBroker() *Broker {
	return NewBroker(Config{
		MaxAttempts:    3,
		BaseBackoff:    5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		HandlerTimeout: time.Second,
		QueueSize:      8,
		Workers:        2,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestPublishCreatesTopicOnFirstUse(t *testing.T) {
	b := testBroker()
	defer b.Close(context.Background())

	if b.HasTopic("bundle_ready") {
		t.Fatalf("topic must not exist before first use")
	}
	if err := b.Publish(context.Background(), "bundle_ready", map[string]string{"id": "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !b.HasTopic("bundle_ready") {
		t.Fatalf("publish must create the topic")
	}
	if got := b.Stats().Dropped; got != 1 {
		t.Fatalf("message without subscribers should be dropped, got %d", got)
	}
}

func TestHandlerErrorIsRedelivered(t *testing.T) {
	b := testBroker()
	defer b.Close(context.Background())

	var attempts atomic.Int32
	var payload struct {
		ID string `json:"id"`
	}
	_, err := b.Subscribe("export", func(_ context.Context, msg Message) error {
		if err := msg.Decode(&payload); err != nil {
			return err
		}
		if attempts.Add(1) < 3 {
			return errors.New("warehouse unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(context.Background(), "export", map[string]string{"id": "bp-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return b.Stats().Delivered == 1 })
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	if payload.ID != "bp-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if got := b.Stats().Redelivered; got != 2 {
		t.Fatalf("expected 2 redeliveries, got %d", got)
	}
}

func TestAttemptBudgetDropsMessage(t *testing.T) {
	b := testBroker()
	defer b.Close(context.Background())

	var attempts atomic.Int32
	_, _ = b.Subscribe("export", func(context.Context, Message) error {
		attempts.Add(1)
		return errors.New("always failing")
	})
	_ = b.Publish(context.Background(), "export", struct{}{})
	waitFor(t, func() bool { return b.Stats().Dropped == 1 })
	if attempts.Load() != 3 {
		t.Fatalf("expected the full attempt budget, got %d", attempts.Load())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := testBroker()
	defer b.Close(context.Background())

	var mu sync.Mutex
	seen := 0
	unsubscribe, _ := b.Subscribe("status", func(context.Context, Message) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})
	_ = b.Publish(context.Background(), "status", 1)
	waitFor(t, func() bool { return b.Stats().Delivered == 1 })
	unsubscribe()
	unsubscribe()
	_ = b.Publish(context.Background(), "status", 2)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if seen != 1 {
		t.Fatalf("expected a single delivery, got %d", seen)
	}
}

func TestPanickingHandlerCountsAsFailure(t *testing.T) {
	b := testBroker()
	defer b.Close(context.Background())
	_, _ = b.Subscribe("render", func(context.Context, Message) error {
		panic("boom")
	})
	_ = b.Publish(context.Background(), "render", 1)
	waitFor(t, func() bool { return b.Stats().Failed == 3 })
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := testBroker()
	b.Close(context.Background())
	if err := b.Publish(context.Background(), "x", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
