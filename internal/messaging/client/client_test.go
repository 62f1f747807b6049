package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway serves the HTTP endpoints and the socket the client uses
type fakeGateway struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	conns         []*websocket.Conn
	received      []map[string]interface{}
	tokens        int
	conversations []domain.Conversation
	thread        []domain.Message
	markedRead    []string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer session-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid token"})
			return
		}
		g.mu.Lock()
		g.tokens++
		g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "socket-token"})
	})
	mux.HandleFunc("/api/messages/conversations", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"conversations": g.conversations})
	})
	mux.HandleFunc("/api/messages/u2", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"messages": g.thread})
	})
	mux.HandleFunc("/api/messages/u2/read", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.mu.Lock()
		g.markedRead = append(g.markedRead, "u2")
		g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "socket-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.mu.Unlock()
		go func() {
			for {
				var frame map[string]interface{}
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				g.mu.Lock()
				g.received = append(g.received, frame)
				g.mu.Unlock()
			}
		}()
	})
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) push(event domain.Event, data interface{}) {
	g.mu.Lock()
	conn := g.conns[len(g.conns)-1]
	g.mu.Unlock()
	require.NoError(g.t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func (g *fakeGateway) dropConnections() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		_ = c.Close()
	}
}

func (g *fakeGateway) connCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *fakeGateway) receivedEvents() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.received))
	for _, f := range g.received {
		out = append(out, f["event"].(string))
	}
	return out
}

func connectedClient(t *testing.T, g *fakeGateway, cfg Config) *Client {
	t.Helper()
	logger.SetNewNop()
	cfg.BaseURL = g.server.URL
	if cfg.SessionToken == "" {
		cfg.SessionToken = "session-1"
	}
	c := New(cfg)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return g.connCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	return c
}

func TestClient_ConnectRejectedSession(t *testing.T) {
	g := newFakeGateway(t)
	logger.SetNewNop()
	c := New(Config{BaseURL: g.server.URL, SessionToken: "wrong"})
	defer c.Close()

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, c.Error(), "Invalid token")
	assert.False(t, c.Connected())
}

func TestClient_SendsProtocolEvents(t *testing.T) {
	g := newFakeGateway(t)
	c := connectedClient(t, g, Config{DisableReconnect: true})

	c.SendMessage("u2", "hello")
	c.StartTyping("u2")
	c.StopTyping("u2")
	c.MarkAsRead("m1")

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"send-message", "typing-start", "typing-stop", "mark-read"}, g.receivedEvents())
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, c.Error())
}

func TestClient_ThreadMirrorAndDedup(t *testing.T) {
	g := newFakeGateway(t)
	now := time.Now().UTC()
	g.thread = []domain.Message{{ID: "m1", SenderID: "u2", RecipientID: "u1", Content: "earlier", CreatedAt: now.Add(-time.Minute)}}
	g.conversations = []domain.Conversation{{ID: "conv1", Participants: []string{"u1", "u2"}, UnreadCount: 1}}
	c := connectedClient(t, g, Config{DisableReconnect: true})

	require.NoError(t, c.LoadMessages(context.Background(), "u2"))
	require.Len(t, c.Messages(), 1)

	incoming := domain.Message{ID: "m2", SenderID: "u2", RecipientID: "u1", Content: "hi", CreatedAt: now}
	g.push(domain.NewMessage, domain.NewMessagePayload{Message: &incoming, ConversationID: "conv1"})
	// the same message delivered twice, once with an extended json id
	g.push(domain.NewMessage, map[string]interface{}{"message": map[string]interface{}{
		"_id": map[string]string{"$oid": "m2"}, "senderId": "u2", "recipientId": "u1", "content": "hi", "createdAt": now,
	}})
	// a message from another thread
	other := domain.Message{ID: "m3", SenderID: "u9", RecipientID: "u1", Content: "elsewhere", CreatedAt: now}
	g.push(domain.NewMessage, domain.NewMessagePayload{Message: &other})

	for i := 0; i < 3; i++ {
		select {
		case <-c.Events():
		case <-time.After(2 * time.Second):
			t.Fatal("frames not handled")
		}
	}
	require.Eventually(t, func() bool { return len(c.Conversations()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[1].ID)

	g.push(domain.MessageRead, domain.MessageReadPayload{MessageID: "m2"})
	assert.Eventually(t, func() bool {
		msgs := c.Messages()
		return len(msgs) == 2 && msgs[1].IsRead
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_PresenceTypingAndErrors(t *testing.T) {
	g := newFakeGateway(t)
	c := connectedClient(t, g, Config{DisableReconnect: true})

	g.push(domain.UserStatusChange, domain.UserStatusPayload{UserID: "u2", IsOnline: true})
	g.push(domain.UserTyping, domain.TypingPayload{UserID: "u2"})
	assert.Eventually(t, func() bool {
		return len(c.OnlineUsers()) == 1 && len(c.TypingUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.push(domain.UserStoppedTyping, domain.TypingPayload{UserID: "u2"})
	g.push(domain.UserStatusChange, domain.UserStatusPayload{UserID: "u2", IsOnline: false})
	assert.Eventually(t, func() bool {
		return len(c.OnlineUsers()) == 0 && len(c.TypingUsers()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	g.push(domain.Error, domain.ErrorPayload{Message: "cannot send a message to yourself"})
	assert.Eventually(t, func() bool { return c.Error() == "cannot send a message to yourself" }, 2*time.Second, 10*time.Millisecond)
	// errors stay until cleared
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "cannot send a message to yourself", c.Error())
	c.ClearError()
	assert.Empty(t, c.Error())
}

func TestClient_EventsChannel(t *testing.T) {
	g := newFakeGateway(t)
	c := connectedClient(t, g, Config{DisableReconnect: true})

	g.push(domain.ConnectionRequest, domain.ConnectionPayload{Connection: domain.Connection{ID: "x1", RequesterID: "u2"}})
	select {
	case ev := <-c.Events():
		assert.Equal(t, domain.ConnectionRequest, ev.Name)
		var payload domain.ConnectionPayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, "x1", payload.Connection.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
}

func TestClient_MarkConversationAsRead(t *testing.T) {
	g := newFakeGateway(t)
	g.conversations = []domain.Conversation{{ID: "conv1", Participants: []string{"u1", "u2"}}}
	c := connectedClient(t, g, Config{DisableReconnect: true})

	require.NoError(t, c.MarkConversationAsRead(context.Background(), "u2"))
	assert.Len(t, c.Conversations(), 1)
	g.mu.Lock()
	assert.Equal(t, []string{"u2"}, g.markedRead)
	g.mu.Unlock()

	err := c.MarkConversationAsRead(context.Background(), "u404")
	assert.Error(t, err)
	assert.Contains(t, c.Error(), "Failed to mark conversation as read")
}

func TestClient_SendWithoutConnection(t *testing.T) {
	logger.SetNewNop()
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	defer c.Close()

	assert.NotPanics(t, func() { c.SendMessage("u2", "hi") })
	assert.Equal(t, ErrNotConnected.Error(), c.Error())
}

func TestClient_ReconnectRefetchesToken(t *testing.T) {
	g := newFakeGateway(t)
	c := connectedClient(t, g, Config{MaxBackoff: 200 * time.Millisecond})

	g.dropConnections()
	assert.Eventually(t, func() bool { return g.connCount() >= 2 && c.Connected() }, 5*time.Second, 20*time.Millisecond)

	g.mu.Lock()
	tokens := g.tokens
	g.mu.Unlock()
	assert.GreaterOrEqual(t, tokens, 2)
	assert.Eventually(t, func() bool { return c.Error() == "" }, 2*time.Second, 20*time.Millisecond)
}
