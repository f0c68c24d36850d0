package bus

import (
	"context"

	"github.com/matchdesk/toc/pkg/logger"
)

const queueSize = 64

// MessageBus carries chat traffic between the bridges and the relay over
// buffered in-process queues. Publishing never blocks; when a queue is full
// the message is dropped and logged.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		logger.WarnCF("bus", "Inbound queue full, dropping message", map[string]any{
			"source": msg.Source,
		})
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		logger.WarnCF("bus", "Outbound queue full, dropping message", map[string]any{
			"target": msg.Target,
		})
	}
}

// NextInbound blocks until a message is available or ctx is done.
func (b *MessageBus) NextInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// NextOutbound blocks until a message is available or ctx is done.
func (b *MessageBus) NextOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
