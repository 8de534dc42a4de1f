package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu  sync.Mutex
	got []Notification
	ch  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 64)}
}

func (r *recorder) handle(_ context.Context, n Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T, count int) []Notification {
	t.Helper()
	for i := 0; i < count; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification %d", i+1)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func TestMemoryBus_DeliversScopedToConversation(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	recA, recB := newRecorder(), newRecorder()
	subA, err := bus.Subscribe(ctx, "c1", recA.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer subA.Close()
	subB, _ := bus.Subscribe(ctx, "c2", recB.handle)
	defer subB.Close()

	if err := bus.Publish(ctx, Notification{ConversationID: "c1", MessageID: "m1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, Notification{ConversationID: "c1", MessageID: "m2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recA.wait(t, 2)
	if got[0].MessageID != "m1" || got[1].MessageID != "m2" {
		t.Fatalf("unexpected notifications: %+v", got)
	}
	select {
	case <-recB.ch:
		t.Fatalf("c2 subscriber must not receive c1 notifications")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CloseUnsubscribes(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	rec := newRecorder()

	sub, _ := bus.Subscribe(ctx, "c1", rec.handle)
	if bus.Subscribers("c1") != 1 {
		t.Fatalf("expected one live subscription")
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if bus.Subscribers("c1") != 0 {
		t.Fatalf("expected subscription removed after close")
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected Done closed")
	}
	if sub.Err() != nil {
		t.Fatalf("explicit close is not a transport error, got %v", sub.Err())
	}
	if err := bus.Publish(ctx, Notification{ConversationID: "c1", MessageID: "m1"}); err != nil {
		t.Fatalf("publish without subscribers should succeed, got %v", err)
	}
}

func TestMemoryBus_ParentContextCancelEndsSubscription(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := bus.Subscribe(ctx, "c1", newRecorder().handle)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected subscription to end with its context")
	}
	_ = sub.Close()
}

func TestMemoryBus_Validation(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	if _, err := bus.Subscribe(ctx, " ", newRecorder().handle); !errors.Is(err, ErrMissingConversation) {
		t.Fatalf("expected ErrMissingConversation, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "c1", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if err := bus.Publish(ctx, Notification{ConversationID: "c1"}); !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("expected ErrInvalidNotification, got %v", err)
	}
}

func TestMemoryBus_DuplicatePublishIsDeliveredTwice(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	rec := newRecorder()
	sub, _ := bus.Subscribe(ctx, "c1", rec.handle)
	defer sub.Close()

	n := Notification{ConversationID: "c1", MessageID: "m1"}
	_ = bus.Publish(ctx, n)
	_ = bus.Publish(ctx, n)

	got := rec.wait(t, 2)
	if len(got) != 2 {
		t.Fatalf("the bus is at-least-once; dedupe belongs to consumers, got %d", len(got))
	}
}
