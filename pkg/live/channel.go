// Package live delivers near-real-time team chat with the lowest latency
// available. It prefers a WebSocket push connection and falls back to
// interval polling through the API client when the socket cannot be
// established or drops, deduplicating messages by id across both paths.
package live

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/matchdesk/toc/pkg/api"
	"github.com/matchdesk/toc/pkg/logger"
	"github.com/matchdesk/toc/pkg/utils"
)

// State is the connection state of a channel. Owned by the channel;
// consumers observe it read-only through State().
type State string

const (
	StateDisconnected    State = "disconnected"
	StateConnecting      State = "connecting"
	StateConnected       State = "connected"
	StateDegradedPolling State = "degraded-polling"
)

// Source tags name the upstream bridge that produced a message.
const (
	SourceConsole  = "toc"
	SourceDiscord  = "discord"
	SourceSlack    = "slack"
	SourceTelegram = "telegram"
)

// Message is one chat message. Ids are unique per channel instance, not
// globally across reconnects; dedupe is id-based.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives each newly delivered message, in arrival order per
// transport. Cross-transport ordering is not guaranteed.
type Handler func(Message)

type Config struct {
	BaseURL string
	TeamID  string

	// PollInterval drives chat catch-up reads while degraded;
	// HealthInterval drives socket pings while connected. Independent timers.
	PollInterval   time.Duration
	HealthInterval time.Duration

	// Reconnect backoff bounds; delay doubles from Min to Max with jitter.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 10 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = 30 * time.Second
	}
}

// Channel is a dual-transport live chat channel for one team.
type Channel struct {
	cfg     Config
	api     *api.Client
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	seen     map[string]struct{}
	cursor   string
	pollStop chan struct{}
	attempt  int
	started  bool
}

func New(cfg Config, client *api.Client, handler Handler) *Channel {
	cfg.withDefaults()
	return &Channel{
		cfg:     cfg,
		api:     client,
		handler: handler,
		state:   StateDisconnected,
		seen:    make(map[string]struct{}),
	}
}

// SocketURL derives the push transport address from the backend base URL and
// team id, upgrading the scheme (http → ws, https → wss).
func SocketURL(baseURL, teamID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/live/teams/" + teamID + "/chat"
	return u.String(), nil
}

// Start begins connecting. It returns immediately; delivery happens on the
// channel's own goroutines until Close.
func (ch *Channel) Start(ctx context.Context) error {
	ch.mu.Lock()
	if ch.started {
		ch.mu.Unlock()
		return fmt.Errorf("channel already started")
	}
	ch.started = true
	ch.ctx, ch.cancel = context.WithCancel(ctx)
	ch.state = StateConnecting
	ch.mu.Unlock()

	if _, err := SocketURL(ch.cfg.BaseURL, ch.cfg.TeamID); err != nil {
		return err
	}

	ch.wg.Add(1)
	go ch.run()
	return nil
}

// State reports the current connection state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Close tears the channel down from any state: cancels all timers and closes
// any open connection unconditionally.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.cancel != nil {
		ch.cancel()
	}
	if ch.pollStop != nil {
		close(ch.pollStop)
		ch.pollStop = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.state = StateDisconnected
	ch.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	ch.wg.Wait()
	return nil
}

func (ch *Channel) run() {
	defer ch.wg.Done()

	for {
		if ch.ctx.Err() != nil {
			return
		}
		ch.setState(StateConnecting)

		conn, err := ch.dial()
		if err != nil {
			logger.DebugCF("live", "Socket connect failed", map[string]any{
				"error": err.Error(),
			})
			ch.setState(StateDegradedPolling)
			ch.startPolling()
			if !ch.waitBackoff() {
				return
			}
			continue
		}

		ch.mu.Lock()
		if ch.ctx.Err() != nil {
			ch.mu.Unlock()
			conn.Close()
			return
		}
		ch.conn = conn
		ch.attempt = 0
		ch.state = StateConnected
		ch.mu.Unlock()
		// The socket is authoritative while open.
		ch.stopPolling()
		logger.InfoCF("live", "Socket connected", map[string]any{
			"team": ch.cfg.TeamID,
		})

		ch.readLoop(conn)

		ch.mu.Lock()
		ch.conn = nil
		ch.mu.Unlock()
		conn.Close()

		if ch.ctx.Err() != nil {
			return
		}
		// Poll as a safety net until a reconnect attempt succeeds.
		ch.setState(StateDegradedPolling)
		ch.startPolling()
		if !ch.waitBackoff() {
			return
		}
	}
}

func (ch *Channel) dial() (*websocket.Conn, error) {
	addr, err := SocketURL(ch.cfg.BaseURL, ch.cfg.TeamID)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ch.ctx, addr, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

// readLoop consumes pushed messages until the socket errors or the channel
// is torn down. A separate health ticker pings the socket while it is open.
func (ch *Channel) readLoop(conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(ch.cfg.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ch.ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ch.ctx.Err() == nil {
				logger.DebugCF("live", "Socket read ended", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}
		ch.deliver(msg, true)
	}
}

func (ch *Channel) startPolling() {
	ch.mu.Lock()
	if ch.pollStop != nil || ch.ctx.Err() != nil {
		ch.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	ch.pollStop = stop
	ch.mu.Unlock()

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		ticker := time.NewTicker(ch.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ch.ctx.Done():
				return
			case <-ticker.C:
				ch.poll()
			}
		}
	}()
}

func (ch *Channel) stopPolling() {
	ch.mu.Lock()
	if ch.pollStop != nil {
		close(ch.pollStop)
		ch.pollStop = nil
	}
	ch.mu.Unlock()
}

// poll issues one bounded catch-up read: messages newer than the last
// delivered id, appended in arrival order.
func (ch *Channel) poll() {
	ch.mu.Lock()
	cursor := ch.cursor
	ch.mu.Unlock()

	path := fmt.Sprintf("/api/teams/%s/chat/messages?after=%s",
		url.PathEscape(ch.cfg.TeamID), url.QueryEscape(cursor))

	var msgs []Message
	if err := ch.api.Get(ch.ctx, path, &msgs); err != nil {
		logger.DebugCF("live", "Poll failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	for _, m := range msgs {
		ch.deliver(m, true)
	}
}

// deliver hands a message to the consumer unless its id was already seen.
// Duplicates across transports are dropped silently; that is the only
// cross-transport guarantee.
func (ch *Channel) deliver(msg Message, advanceCursor bool) {
	ch.mu.Lock()
	if _, dup := ch.seen[msg.ID]; dup {
		ch.mu.Unlock()
		return
	}
	ch.seen[msg.ID] = struct{}{}
	if advanceCursor {
		ch.cursor = msg.ID
	}
	handler := ch.handler
	ch.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}

type postMessageRequest struct {
	Body   string `json:"body"`
	Author string `json:"author"`
	Source string `json:"source"`
}

// Send posts a message through the request API, never the socket, and echoes
// it locally as an optimistic message. On confirmation the server-assigned id
// is marked seen so the push or poll echo is deduped.
func (ch *Channel) Send(ctx context.Context, author, body string) (Message, error) {
	optimistic := Message{
		ID:        uuid.NewString(),
		Author:    author,
		Body:      body,
		Source:    SourceConsole,
		Timestamp: time.Now().UTC(),
	}
	ch.deliver(optimistic, false)

	var confirmed Message
	path := fmt.Sprintf("/api/teams/%s/chat/messages", url.PathEscape(ch.cfg.TeamID))
	err := ch.api.Post(ctx, path, postMessageRequest{
		Body:   body,
		Author: author,
		Source: SourceConsole,
	}, &confirmed)
	if err != nil {
		return optimistic, fmt.Errorf("failed to send message: %w", err)
	}

	ch.mu.Lock()
	ch.seen[confirmed.ID] = struct{}{}
	ch.mu.Unlock()

	logger.DebugCF("live", "Message sent", map[string]any{
		"id":      confirmed.ID,
		"preview": utils.Truncate(body, 50),
	})
	return confirmed, nil
}

// waitBackoff sleeps the next reconnect delay: exponential from ReconnectMin
// to ReconnectMax with jitter, so simultaneous clients do not reconnect in
// lockstep. Returns false when the channel is torn down mid-wait.
func (ch *Channel) waitBackoff() bool {
	ch.mu.Lock()
	delay := ch.cfg.ReconnectMin << ch.attempt
	if delay > ch.cfg.ReconnectMax || delay <= 0 {
		delay = ch.cfg.ReconnectMax
	} else {
		ch.attempt++
	}
	ch.mu.Unlock()

	half := delay / 2
	delay = half + time.Duration(rand.Int64N(int64(half)+1))

	select {
	case <-ch.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (ch *Channel) setState(s State) {
	ch.mu.Lock()
	// A torn-down channel stays disconnected.
	if ch.ctx == nil || ch.ctx.Err() == nil {
		ch.state = s
	}
	ch.mu.Unlock()
}
