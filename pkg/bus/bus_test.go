package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishAndNextInbound(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(InboundMessage{Source: "discord", Content: "gg"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.NextInbound(ctx)
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Source != "discord" || msg.Content != "gg" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestNextInboundHonorsContext(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.NextInbound(ctx); ok {
		t.Error("expected no message after cancellation")
	}
}

func TestFullQueueDoesNotBlockPublisher(t *testing.T) {
	b := NewMessageBus()
	// Overfill the queue; if PublishOutbound blocked, the test would hang.
	for i := 0; i < queueSize*2; i++ {
		b.PublishOutbound(OutboundMessage{Target: "slack", Content: "spam"})
	}
}
