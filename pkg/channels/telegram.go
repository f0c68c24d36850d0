package channels

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"

	"github.com/matchdesk/toc/pkg/bus"
	"github.com/matchdesk/toc/pkg/config"
	"github.com/matchdesk/toc/pkg/live"
	"github.com/matchdesk/toc/pkg/logger"
	"github.com/matchdesk/toc/pkg/utils"
)

// TelegramChannel bridges a Telegram chat and the team chat via long polling.
type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
	cancel context.CancelFunc
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := telego.NewBot(cfg.Token, telego.WithDefaultLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel(live.SourceTelegram, messageBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bridge")

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(runCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)

	go func() {
		for update := range updates {
			c.handleUpdate(runCtx, update)
		}
	}()

	logger.InfoC("telegram", "Telegram bridge connected")
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bridge")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bridge not running")
	}

	chatID := c.config.ChatID
	if msg.ChatID != "" {
		parsed, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
		}
		chatID = parsed
	}
	if chatID == 0 {
		return fmt.Errorf("chat ID is empty")
	}

	content := msg.Content
	if msg.Author != "" {
		content = fmt.Sprintf("%s: %s", msg.Author, msg.Content)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := c.bot.SendMessage(sendCtx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   content,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	m := update.Message

	if c.config.ChatID != 0 && m.Chat.ID != c.config.ChatID {
		return
	}

	senderID := strconv.FormatInt(m.From.ID, 10)
	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]any{
			"user_id": senderID,
		})
		return
	}

	if m.Text == "" {
		return
	}

	senderName := m.From.Username
	if senderName == "" {
		senderName = m.From.FirstName
	}

	logger.DebugCF("telegram", "Received message", map[string]any{
		"sender_name": senderName,
		"sender_id":   senderID,
		"preview":     utils.Truncate(m.Text, 50),
	})

	c.PublishInbound(bus.InboundMessage{
		SenderID: senderID,
		Sender:   senderName,
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
		Content:  m.Text,
		Metadata: map[string]string{
			"message_id": strconv.Itoa(m.MessageID),
		},
	})
}
