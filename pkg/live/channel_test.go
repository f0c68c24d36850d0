package live_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matchdesk/toc/pkg/api"
	"github.com/matchdesk/toc/pkg/live"
)

// chatServer fakes the backend's push socket and polling endpoint so tests
// can drive both transports independently.
type chatServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	wsEnabled    bool
	ignoreAfter  bool
	conns        []*websocket.Conn
	messages     []live.Message
	postResponse string

	pollCount atomic.Int32
	postCount atomic.Int32
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	cs := &chatServer{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/live/teams/", cs.handleSocket)
	mux.HandleFunc("/api/teams/", cs.handlePoll)
	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	cs.mu.Lock()
	enabled := cs.wsEnabled
	cs.mu.Unlock()
	if !enabled {
		http.NotFound(w, r)
		return
	}
	conn, err := cs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cs.mu.Lock()
	cs.conns = append(cs.conns, conn)
	cs.mu.Unlock()
	// Keep the read side alive so control frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (cs *chatServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/messages") {
		http.NotFound(w, r)
		return
	}
	if r.Method == http.MethodPost {
		cs.postCount.Add(1)
		cs.mu.Lock()
		resp := cs.postResponse
		cs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
		return
	}
	cs.pollCount.Add(1)

	cs.mu.Lock()
	after := r.URL.Query().Get("after")
	out := cs.messages
	if !cs.ignoreAfter && after != "" {
		out = nil
		found := false
		for _, m := range cs.messages {
			if found {
				out = append(out, m)
			}
			if m.ID == after {
				found = true
			}
		}
	}
	cs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if out == nil {
		w.Write([]byte("[]"))
		return
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		cs.t.Errorf("encode poll response: %v", err)
	}
}

func (cs *chatServer) setSocketEnabled(enabled bool) {
	cs.mu.Lock()
	cs.wsEnabled = enabled
	cs.mu.Unlock()
}

func (cs *chatServer) setMessages(ignoreAfter bool, msgs ...live.Message) {
	cs.mu.Lock()
	cs.ignoreAfter = ignoreAfter
	cs.messages = msgs
	cs.mu.Unlock()
}

func (cs *chatServer) push(msg live.Message) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.conns {
		if err := c.WriteJSON(msg); err != nil {
			cs.t.Logf("push failed: %v", err)
		}
	}
}

func (cs *chatServer) dropConns() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.conns {
		c.Close()
	}
	cs.conns = nil
}

// recorder collects delivered messages behind a mutex.
type recorder struct {
	mu   sync.Mutex
	msgs []live.Message
}

func (r *recorder) handle(m live.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) countID(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

func newTestChannel(t *testing.T, cs *chatServer, rec *recorder) *live.Channel {
	t.Helper()
	client := api.NewClient(api.Config{
		BaseURL:   cs.srv.URL,
		CSRFToken: "test-token",
		Timeout:   2 * time.Second,
	})
	ch := live.New(live.Config{
		BaseURL:        cs.srv.URL,
		TeamID:         "team-7",
		PollInterval:   20 * time.Millisecond,
		HealthInterval: time.Minute,
		ReconnectMin:   10 * time.Millisecond,
		ReconnectMax:   40 * time.Millisecond,
	}, client, rec.handle)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestSocketURLSchemeUpgrade(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://toc.example.com", "ws://toc.example.com/live/teams/team-7/chat"},
		{"https://toc.example.com", "wss://toc.example.com/live/teams/team-7/chat"},
	}
	for _, tc := range tests {
		got, err := live.SocketURL(tc.base, "team-7")
		if err != nil {
			t.Fatalf("SocketURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Errorf("SocketURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}

	if _, err := live.SocketURL("ftp://nope", "team-7"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestHandshakeFailureFallsBackToPolling(t *testing.T) {
	cs := newChatServer(t)
	cs.setSocketEnabled(false)

	rec := &recorder{}
	ch := newTestChannel(t, cs, rec)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return cs.pollCount.Load() >= 1 && ch.State() == live.StateDegradedPolling
	}, "degraded-polling with at least one poll")
}

func TestDuplicateAcrossTransportsIsSuppressed(t *testing.T) {
	cs := newChatServer(t)
	cs.setSocketEnabled(true)

	rec := &recorder{}
	ch := newTestChannel(t, cs, rec)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return ch.State() == live.StateConnected }, "connected")

	// Deliver 42 over the push transport.
	cs.push(live.Message{ID: "42", Author: "aria", Body: "gg", Source: "discord"})
	waitFor(t, 2*time.Second, func() bool { return rec.countID("42") == 1 }, "push delivery of 42")

	// Kill the socket; the polling fallback redelivers 42 alongside 43.
	cs.setMessages(true,
		live.Message{ID: "42", Author: "aria", Body: "gg", Source: "discord"},
		live.Message{ID: "43", Author: "ben", Body: "wp", Source: "toc"},
	)
	cs.setSocketEnabled(false)
	cs.dropConns()

	waitFor(t, 2*time.Second, func() bool { return rec.countID("43") == 1 }, "poll delivery of 43")
	if n := rec.countID("42"); n != 1 {
		t.Errorf("message 42 delivered %d times, want exactly 1", n)
	}
}

func TestReconnectCancelsPolling(t *testing.T) {
	cs := newChatServer(t)
	cs.setSocketEnabled(false)

	rec := &recorder{}
	ch := newTestChannel(t, cs, rec)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return ch.State() == live.StateDegradedPolling && cs.pollCount.Load() >= 1
	}, "degraded-polling")

	cs.setSocketEnabled(true)
	waitFor(t, 2*time.Second, func() bool { return ch.State() == live.StateConnected }, "reconnect")

	// Let any in-flight poll tick drain, then assert the timer is gone.
	time.Sleep(60 * time.Millisecond)
	before := cs.pollCount.Load()
	time.Sleep(200 * time.Millisecond)
	if after := cs.pollCount.Load(); after != before {
		t.Errorf("polling continued after reconnect: %d new polls", after-before)
	}
}

func TestSocketDropEntersDegradedPolling(t *testing.T) {
	cs := newChatServer(t)
	cs.setSocketEnabled(true)

	rec := &recorder{}
	ch := newTestChannel(t, cs, rec)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return ch.State() == live.StateConnected }, "connected")

	// Kill the socket and keep reconnects failing so the fallback phase is
	// observable.
	cs.setSocketEnabled(false)
	polls := cs.pollCount.Load()
	cs.dropConns()

	waitFor(t, 2*time.Second, func() bool {
		return ch.State() == live.StateDegradedPolling && cs.pollCount.Load() > polls
	}, "degraded-polling after socket drop")
}

func TestSendIsOptimisticAndConfirmationDeduped(t *testing.T) {
	cs := newChatServer(t)
	cs.setSocketEnabled(true)
	cs.mu.Lock()
	cs.postResponse = `{"id": "srv-100", "author": "coach", "body": "scrim at 8", "source": "toc"}`
	cs.mu.Unlock()

	rec := &recorder{}
	ch := newTestChannel(t, cs, rec)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return ch.State() == live.StateConnected }, "connected")

	msg, err := ch.Send(context.Background(), "coach", "scrim at 8")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.ID != "srv-100" {
		t.Errorf("expected confirmed id srv-100, got %q", msg.ID)
	}
	if cs.postCount.Load() != 1 {
		t.Errorf("expected one POST, got %d", cs.postCount.Load())
	}

	// The optimistic echo was delivered locally exactly once.
	rec.mu.Lock()
	local := len(rec.msgs)
	rec.mu.Unlock()
	if local != 1 {
		t.Fatalf("expected 1 locally delivered message, got %d", local)
	}

	// The server echo of the confirmed message over push must be deduped.
	cs.push(live.Message{ID: "srv-100", Author: "coach", Body: "scrim at 8", Source: "toc"})
	time.Sleep(50 * time.Millisecond)
	if n := rec.countID("srv-100"); n != 0 {
		t.Errorf("confirmed echo delivered %d times, want 0 (already shown optimistically)", n)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	cs := newChatServer(t)
	cs.setSocketEnabled(false)

	rec := &recorder{}
	ch := newTestChannel(t, cs, rec)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return cs.pollCount.Load() >= 1 }, "polling active")

	if err := ch.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if ch.State() != live.StateDisconnected {
		t.Errorf("expected disconnected after close, got %s", ch.State())
	}

	before := cs.pollCount.Load()
	time.Sleep(100 * time.Millisecond)
	if after := cs.pollCount.Load(); after != before {
		t.Errorf("polling continued after close: %d new polls", after-before)
	}
}
