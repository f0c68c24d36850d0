// Package relay moves chat traffic between the bridges and the team chat:
// bridge messages are posted into the chat tagged with their source, and
// live chat messages fan out to every bridge except the one they came from.
package relay

import (
	"context"

	"github.com/matchdesk/toc/pkg/bus"
	"github.com/matchdesk/toc/pkg/channels"
	"github.com/matchdesk/toc/pkg/live"
	"github.com/matchdesk/toc/pkg/logger"
	"github.com/matchdesk/toc/pkg/toc"
	"github.com/matchdesk/toc/pkg/utils"
)

type Relay struct {
	bus     *bus.MessageBus
	chat    *toc.ChatService
	bridges map[string]channels.Channel
}

func New(messageBus *bus.MessageBus, chat *toc.ChatService, bridges ...channels.Channel) *Relay {
	byName := make(map[string]channels.Channel, len(bridges))
	for _, b := range bridges {
		byName[b.Name()] = b
	}
	return &Relay{
		bus:     messageBus,
		chat:    chat,
		bridges: byName,
	}
}

// Run pumps both directions until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	go r.outboundLoop(ctx)
	r.inboundLoop(ctx)
}

// HandleLive is the live channel's consumer callback: each delivered chat
// message is queued for every bridge except its origin, so a message is
// never echoed back to the platform it came from.
func (r *Relay) HandleLive(msg live.Message) {
	for name := range r.bridges {
		if name == msg.Source {
			continue
		}
		r.bus.PublishOutbound(bus.OutboundMessage{
			Source:  msg.Source,
			Target:  name,
			Author:  msg.Author,
			Content: msg.Body,
		})
	}
}

func (r *Relay) inboundLoop(ctx context.Context) {
	for {
		msg, ok := r.bus.NextInbound(ctx)
		if !ok {
			return
		}
		if _, err := r.chat.Post(ctx, msg.Sender, msg.Content, msg.Source); err != nil {
			logger.WarnCF("relay", "Failed to post bridge message", map[string]any{
				"source":  msg.Source,
				"preview": utils.Truncate(msg.Content, 50),
				"error":   err.Error(),
			})
		}
	}
}

func (r *Relay) outboundLoop(ctx context.Context) {
	for {
		msg, ok := r.bus.NextOutbound(ctx)
		if !ok {
			return
		}
		bridge, ok := r.bridges[msg.Target]
		if !ok {
			continue
		}
		if err := bridge.Send(ctx, msg); err != nil {
			logger.WarnCF("relay", "Failed to deliver to bridge", map[string]any{
				"target": msg.Target,
				"error":  err.Error(),
			})
		}
	}
}
