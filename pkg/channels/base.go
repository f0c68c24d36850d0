// Package channels holds the chat bridges: each one relays messages between
// an upstream platform (Discord, Slack, Telegram) and the team chat bus.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/matchdesk/toc/pkg/bus"
)

// Channel is one chat bridge.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the state every bridge shares: its name, the bus it
// publishes into, the sender allowlist, and the running flag.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]struct{}
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowFrom: allowed,
	}
}

func (b *BaseChannel) Name() string {
	return b.name
}

func (b *BaseChannel) IsRunning() bool {
	return b.running.Load()
}

func (b *BaseChannel) setRunning(running bool) {
	b.running.Store(running)
}

// IsAllowed reports whether a sender passes the allowlist. An empty
// allowlist admits everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	_, ok := b.allowFrom[senderID]
	return ok
}

// PublishInbound forwards a platform message onto the bus, tagged with this
// bridge's name as its source.
func (b *BaseChannel) PublishInbound(msg bus.InboundMessage) {
	msg.Source = b.name
	b.bus.PublishInbound(msg)
}
