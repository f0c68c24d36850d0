package channels

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/matchdesk/toc/pkg/bus"
	"github.com/matchdesk/toc/pkg/config"
	"github.com/matchdesk/toc/pkg/live"
	"github.com/matchdesk/toc/pkg/logger"
	"github.com/matchdesk/toc/pkg/utils"
)

// SlackChannel bridges a Slack channel and the team chat over Socket Mode.
type SlackChannel struct {
	*BaseChannel
	api    *slack.Client
	socket *socketmode.Client
	config config.SlackConfig
	botID  string
	cancel context.CancelFunc
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) (*SlackChannel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack bot token and app token are required")
	}
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	return &SlackChannel{
		BaseChannel: NewBaseChannel(live.SourceSlack, messageBus, cfg.AllowFrom),
		api:         api,
		socket:      socketmode.New(api),
		config:      cfg,
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	logger.InfoC("slack", "Starting Slack bridge")

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with slack: %w", err)
	}
	c.botID = auth.UserID

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setRunning(true)

	go func() {
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			logger.ErrorCF("slack", "Socket mode stopped", map[string]any{
				"error": err.Error(),
			})
		}
	}()
	go c.eventLoop(runCtx)

	logger.InfoCF("slack", "Slack bridge connected", map[string]any{
		"bot_user": auth.User,
		"user_id":  auth.UserID,
	})
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	logger.InfoC("slack", "Stopping Slack bridge")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("slack bridge not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		channelID = c.config.ChannelID
	}
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	content := msg.Content
	if msg.Author != "" {
		content = fmt.Sprintf("*%s*: %s", msg.Author, msg.Content)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, _, err := c.api.PostMessageContext(sendCtx, channelID, slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	return nil
}

func (c *SlackChannel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				c.socket.Ack(*evt.Request)
			}
			if apiEvent.Type != slackevents.CallbackEvent {
				continue
			}
			if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				c.handleMessage(ev)
			}
		}
	}
}

func (c *SlackChannel) handleMessage(ev *slackevents.MessageEvent) {
	// Skip bot echoes, edits, and other subtype events.
	if ev.BotID != "" || ev.SubType != "" || ev.User == c.botID {
		return
	}
	if c.config.ChannelID != "" && ev.Channel != c.config.ChannelID {
		return
	}
	if !c.IsAllowed(ev.User) {
		logger.DebugCF("slack", "Message rejected by allowlist", map[string]any{
			"user_id": ev.User,
		})
		return
	}
	if ev.Text == "" {
		return
	}

	logger.DebugCF("slack", "Received message", map[string]any{
		"sender_id": ev.User,
		"preview":   utils.Truncate(ev.Text, 50),
	})

	c.PublishInbound(bus.InboundMessage{
		SenderID: ev.User,
		Sender:   ev.User,
		ChatID:   ev.Channel,
		Content:  ev.Text,
		Metadata: map[string]string{
			"ts": ev.TimeStamp,
		},
	})
}
