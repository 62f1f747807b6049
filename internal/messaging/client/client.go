// Package client is the Go counterpart of the portal's browser messaging
// adapter: it fetches a socket token, keeps a websocket to the gateway
// open, and mirrors the open thread and the conversation list.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected an operation needed the socket before Connect succeeded
var ErrNotConnected = errors.New("not connected")

// Config client settings
type Config struct {
	// BaseURL http(s)://host:port of the messaging service
	BaseURL string
	// SessionToken portal session credential sent as a bearer token
	SessionToken string
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
	// DisableReconnect stops the client from redialing after a read error
	DisableReconnect bool
	MaxBackoff       time.Duration
	WriteWait        time.Duration
}

// Event a raw server event
type Event struct {
	Name domain.Event
	Data json.RawMessage
}

// Client websocket + HTTP messaging adapter. Safe for concurrent use.
type Client struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	mu      sync.RWMutex
	conn    *websocket.Conn
	closed  bool
	peer    string

	messages      []domain.Message
	conversations []domain.Conversation
	errMsg        string
	typing        map[string]bool
	online        map[string]bool
	events        chan Event
}

// New create a Client, nothing is dialed until Connect
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		typing: make(map[string]bool),
		online: make(map[string]bool),
		events: make(chan Event, 64),
	}
}

// Connect fetches a socket token and dials the gateway.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		c.setError(fmt.Sprintf("Failed to connect: %v", err))
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/token", &body); err != nil {
		return nil, fmt.Errorf("fetch socket token: %w", err)
	}
	if body.Token == "" {
		return nil, errors.New("fetch socket token: empty token")
	}

	wsURL, err := c.socketURL(body.Token)
	if err != nil {
		return nil, err
	}
	conn, _, err := c.cfg.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return conn, nil
}

func (c *Client) socketURL(tok string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {tok}}.Encode()
	return u.String(), nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
			if closed {
				return
			}
			c.setError(fmt.Sprintf("Connection lost: %v", err))
			if !c.cfg.DisableReconnect {
				go c.reconnect()
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) reconnect() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, err := c.dial(c.ctx)
		if err != nil {
			logger.Log.Debug("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		c.attach(conn)
		return nil
	}, backoff.WithContext(b, c.ctx))
	if err != nil {
		return
	}
	c.ClearError()
}

func (c *Client) handle(data []byte) {
	var frame struct {
		Event domain.Event    `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Log.Debug("drop malformed frame", zap.Error(err))
		return
	}

	switch frame.Event {
	case domain.MessageSent, domain.NewMessage:
		var payload struct {
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err == nil && len(payload.Message) > 0 {
			if msg, err := decodeMessage(payload.Message); err == nil {
				c.appendMessage(msg)
			}
		}
		go c.refreshQuietly()

	case domain.ConversationUpdated:
		go c.refreshQuietly()

	case domain.MessageRead:
		var payload struct {
			MessageID interface{} `json:"messageId"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			c.markLocalRead(NormalizeID(payload.MessageID))
		}

	case domain.UserTyping, domain.UserStoppedTyping:
		var payload struct {
			UserID interface{} `json:"userId"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			c.mu.Lock()
			if frame.Event == domain.UserTyping {
				c.typing[NormalizeID(payload.UserID)] = true
			} else {
				delete(c.typing, NormalizeID(payload.UserID))
			}
			c.mu.Unlock()
		}

	case domain.UserStatusChange:
		var payload struct {
			UserID   interface{} `json:"userId"`
			IsOnline bool        `json:"isOnline"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			c.mu.Lock()
			if payload.IsOnline {
				c.online[NormalizeID(payload.UserID)] = true
			} else {
				delete(c.online, NormalizeID(payload.UserID))
			}
			c.mu.Unlock()
		}

	case domain.Error:
		var payload domain.ErrorPayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			c.setError(payload.Message)
		}
	}

	c.emit(Event{Name: frame.Event, Data: frame.Data})
}

func (c *Client) emit(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		logger.Log.Debug("event dropped, consumer too slow", zap.String("event", string(ev.Name)))
	}
}

func (c *Client) appendMessage(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !inThread(c.peer, msg) || isDuplicate(c.messages, msg) {
		return
	}
	c.messages = append(c.messages, msg)
}

func (c *Client) markLocalRead(messageID string) {
	if messageID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			c.messages[i].IsRead = true
		}
	}
}

func (c *Client) refreshQuietly() {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	_ = c.RefreshConversations(ctx)
}

func (c *Client) write(event domain.Event, data interface{}) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		c.setError(ErrNotConnected.Error())
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := conn.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		c.setError(fmt.Sprintf("Failed to send %s: %v", event, err))
	}
}

// SendMessage sends content to recipientID. Failures land in Error().
func (c *Client) SendMessage(recipientID, content string) {
	c.write(domain.SendMessage, domain.SendMessageRequest{RecipientID: recipientID, Content: content})
}

// MarkAsRead marks one received message read.
func (c *Client) MarkAsRead(messageID string) {
	c.write(domain.MarkRead, domain.MarkReadRequest{MessageID: messageID})
}

// StartTyping tells recipientID the user is typing.
func (c *Client) StartTyping(recipientID string) {
	c.write(domain.TypingStart, domain.TypingRequest{RecipientID: recipientID})
}

// StopTyping tells recipientID the user stopped typing.
func (c *Client) StopTyping(recipientID string) {
	c.write(domain.TypingStop, domain.TypingRequest{RecipientID: recipientID})
}

// LoadMessages replaces the mirrored thread with the history shared with
// otherUserID and makes it the open thread.
func (c *Client) LoadMessages(ctx context.Context, otherUserID string) error {
	var body struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(otherUserID), &body); err != nil {
		c.setError(fmt.Sprintf("Failed to load messages: %v", err))
		return err
	}
	msgs := []domain.Message{}
	if len(body.Messages) > 0 && string(body.Messages) != "null" {
		decoded, err := decodeMessages(body.Messages)
		if err != nil {
			c.setError(fmt.Sprintf("Failed to load messages: %v", err))
			return err
		}
		msgs = decoded
	}

	c.mu.Lock()
	c.peer = NormalizeID(otherUserID)
	c.messages = msgs
	c.mu.Unlock()
	return nil
}

// RefreshConversations reloads the whole conversation list.
func (c *Client) RefreshConversations(ctx context.Context) error {
	var body struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/conversations", &body); err != nil {
		c.setError(fmt.Sprintf("Failed to load conversations: %v", err))
		return err
	}
	if body.Conversations == nil {
		body.Conversations = []domain.Conversation{}
	}
	c.mu.Lock()
	c.conversations = body.Conversations
	c.mu.Unlock()
	return nil
}

// MarkConversationAsRead resets the unread counter of the thread with
// otherUserID and reloads the conversation list.
func (c *Client) MarkConversationAsRead(ctx context.Context, otherUserID string) error {
	if err := c.doJSON(ctx, http.MethodPut, "/api/messages/"+url.PathEscape(otherUserID)+"/read", nil); err != nil {
		c.setError(fmt.Sprintf("Failed to mark conversation as read: %v", err))
		return err
	}
	return c.RefreshConversations(ctx)
}

func (c *Client) doJSON(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SessionToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

// Error the last failure, "" when none. It stays until ClearError.
func (c *Client) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

// ClearError resets Error().
func (c *Client) ClearError() {
	c.setError("")
}

// Messages copy of the open thread, oldest first.
func (c *Client) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Message(nil), c.messages...)
}

// Conversations copy of the last loaded conversation list.
func (c *Client) Conversations() []domain.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Conversation(nil), c.conversations...)
}

// TypingUsers ids currently typing to this user.
func (c *Client) TypingUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return keys(c.typing)
}

// OnlineUsers ids last reported online.
func (c *Client) OnlineUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return keys(c.online)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Events raw server events, closed by Close. Events are dropped when the
// buffer is full.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Close stops reconnecting and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	close(c.events)
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}
