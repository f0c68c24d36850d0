package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/matchdesk/toc/pkg/bus"
	"github.com/matchdesk/toc/pkg/config"
	"github.com/matchdesk/toc/pkg/live"
	"github.com/matchdesk/toc/pkg/logger"
	"github.com/matchdesk/toc/pkg/utils"
)

const sendTimeout = 10 * time.Second

// DiscordChannel bridges a Discord channel and the team chat.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel(live.SourceDiscord, messageBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bridge")

	c.session.AddHandler(c.handleMessage)
	c.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bridge connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bridge")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bridge not running")
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
		content = fmt.Sprintf("**%s**: %s", msg.Author, msg.Content)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

// appendContent safely appends a suffix line to existing text.
func appendContent(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}

	if m.Author.ID == s.State.User.ID {
		return
	}

	if c.config.ChannelID != "" && m.ChannelID != c.config.ChannelID {
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	senderName := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		senderName += "#" + m.Author.Discriminator
	}

	content := m.Content
	mediaPaths := make([]string, 0, len(m.Attachments))
	for _, attachment := range m.Attachments {
		mediaPaths = append(mediaPaths, attachment.URL)
		content = appendContent(content, fmt.Sprintf("[attachment: %s]", attachment.URL))
	}

	if content == "" && len(mediaPaths) == 0 {
		return
	}
	if content == "" {
		content = "[media only]"
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_name": senderName,
		"sender_id":   m.Author.ID,
		"preview":     utils.Truncate(content, 50),
	})

	c.PublishInbound(bus.InboundMessage{
		SenderID: m.Author.ID,
		Sender:   senderName,
		ChatID:   m.ChannelID,
		Content:  content,
		Media:    mediaPaths,
		Metadata: map[string]string{
			"message_id": m.ID,
			"guild_id":   m.GuildID,
			"is_dm":      fmt.Sprintf("%t", m.GuildID == ""),
		},
	})
}
