package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"conti/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{70, 30 * time.Second}, // no shift overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "connection error", err: errors.New("connection refused"), expected: true},
		{name: "closed connection error", err: errors.New("connection closed"), expected: true},
		{name: "EOF error", err: errors.New("unexpected EOF"), expected: true},
		{name: "broken pipe error", err: errors.New("broken pipe"), expected: true},
		{name: "amqp closed", err: fmt.Errorf("publish: %w", amqp091.ErrClosed), expected: true},
		{name: "other error", err: errors.New("some other error"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

type fakePublisher struct {
	calls atomic.Int32
	err   error
	last  amqp091.Publishing
	key   string
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	f.calls.Add(1)
	f.last = msg
	f.key = key
	return f.err
}

func TestPublishGroupChanged(t *testing.T) {
	pub := &fakePublisher{}
	c := newClient("", "conti", "group_changes", nil)
	c.pub = pub

	if err := c.PublishGroupChanged(context.Background(), "g1", core.Fingerprint(42)); err != nil {
		t.Fatalf("PublishGroupChanged() error = %v", err)
	}
	if pub.key != "group_changes" {
		t.Errorf("routing key = %q, want group_changes", pub.key)
	}
	if pub.last.DeliveryMode != amqp091.Persistent {
		t.Errorf("delivery mode = %d, want persistent", pub.last.DeliveryMode)
	}
	msg, err := GroupChangedMessageFromJSON(pub.last.Body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.GroupID != "g1" || msg.Fingerprint != 42 {
		t.Errorf("message = %+v", msg)
	}
}

func TestPublishCircuitBreaker(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel/connection is not open")}
	c := newClient("", "conti", "group_changes", nil)
	c.pub = pub
	ctx := context.Background()

	t.Run("initial state is closed", func(t *testing.T) {
		if c.State() != gobreaker.StateClosed {
			t.Errorf("State() = %v, want closed", c.State())
		}
	})

	t.Run("consecutive failures open circuit", func(t *testing.T) {
		for i := 0; i < consecutiveFailures; i++ {
			err := c.PublishGroupChanged(ctx, "g1", 1)
			if err == nil || errors.Is(err, ErrUnavailable) {
				t.Fatalf("attempt %d: error = %v, want publish failure", i, err)
			}
		}
		if c.State() != gobreaker.StateOpen {
			t.Errorf("State() = %v, want open", c.State())
		}
	})

	t.Run("open circuit fails fast", func(t *testing.T) {
		before := pub.calls.Load()
		err := c.PublishGroupChanged(ctx, "g1", 1)
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want ErrUnavailable", err)
		}
		if pub.calls.Load() != before {
			t.Error("publisher should not be called while circuit is open")
		}
	})

	t.Run("open circuit is not ready", func(t *testing.T) {
		if err := c.Ready(ctx); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Ready() = %v, want ErrUnavailable", err)
		}
	})
}

func TestPublishNotConnected(t *testing.T) {
	c := newClient("", "conti", "q", nil)
	if err := c.PublishGroupChanged(context.Background(), "g1", 1); err == nil {
		t.Error("PublishGroupChanged() error = nil, want not connected")
	}
	if err := c.Ready(context.Background()); err == nil {
		t.Error("Ready() error = nil, want closed connection")
	}
}

type fakeAck struct {
	acked, nacked, requeued int
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	if requeue {
		f.requeued++
	}
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { return nil }

func TestHandleDelivery(t *testing.T) {
	c := newClient("", "conti", "q", nil)
	ctx := context.Background()
	valid, _ := NewGroupChangedMessage("g1", 7).ToJSON()

	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		wantAck    int
		wantNack   int
		wantRequeu int
		wantCalled bool
	}{
		{name: "success acks", body: valid, wantAck: 1, wantCalled: true},
		{name: "handler error requeues", body: valid, handlerErr: errors.New("boom"), wantNack: 1, wantRequeu: 1, wantCalled: true},
		{name: "malformed body is dropped", body: []byte("{nope"), wantNack: 1},
		{name: "missing group id is dropped", body: []byte(`{"fingerprint":1}`), wantNack: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			called := false
			c.handleDelivery(ctx, amqp091.Delivery{Acknowledger: ack, Body: tt.body}, func(_ context.Context, msg *GroupChangedMessage) error {
				called = true
				if msg.GroupID != "g1" || msg.Fingerprint != 7 {
					t.Errorf("handler got %+v", msg)
				}
				return tt.handlerErr
			})
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.requeued != tt.wantRequeu {
				t.Errorf("ack=%d nack=%d requeue=%d, want %d/%d/%d",
					ack.acked, ack.nacked, ack.requeued, tt.wantAck, tt.wantNack, tt.wantRequeu)
			}
		})
	}
}
