package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/metrics"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/middlewares"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GatewayConfig keepalive timing of a websocket connection
type GatewayConfig struct {
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// wsConn the part of a websocket connection the gateway uses
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetCloseHandler(h func(code int, text string) error)
	Close() error
}

// ChatWebsocketHandler realtime gateway, one HandleConnection per socket
type ChatWebsocketHandler struct {
	uc       *MessagingUseCase
	validate *validator.Validate
	cfg      GatewayConfig
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(uc *MessagingUseCase, cfg GatewayConfig) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		uc:       uc,
		validate: validator.New(),
		cfg:      cfg.withDefaults(),
	}
}

// connWriter serializes every write on one connection
type connWriter struct {
	mu        sync.Mutex
	conn      wsConn
	writeWait time.Duration
}

func (w *connWriter) sendRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *connWriter) send(resp domain.WSResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return w.sendRaw(data)
}

func (w *connWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait))
}

// HandleConnection entry point of an upgraded socket. SocketAuth already
// put the token claims into the connection locals.
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	userType, _ := conn.Locals(middlewares.TokenUserType).(string)
	h.serve(ctx, conn, Caller{
		UserID:   userID,
		UserType: domain.Role(userType),
		ConnID:   uuid.New().String(),
	})
}

func (h *ChatWebsocketHandler) setState(caller Caller, state domain.ConnState) {
	logger.Log.Info("websocket state",
		zap.String("user_id", caller.UserID),
		zap.String("conn_id", caller.ConnID),
		zap.String("state", string(state)))
}

func (h *ChatWebsocketHandler) serve(ctx context.Context, conn wsConn, caller Caller) {
	w := &connWriter{conn: conn, writeWait: h.cfg.WriteWait}
	connCtx, cancel := context.WithCancel(ctx)

	if caller.UserID == "" {
		h.setState(caller, domain.ConnDisconnected)
		_ = w.send(domain.NewError("Authentication required"))
		cancel()
		conn.Close()
		return
	}
	h.setState(caller, domain.ConnAuthenticated)

	// subscribe before registering so nothing pushed after presence is visible gets lost
	err := h.uc.pubsub.Subscribe(connCtx, caller.UserID, func(payload []byte) {
		if err := w.sendRaw(payload); err != nil {
			logger.Log.Debug("forward to socket failed", zap.String("user_id", caller.UserID), zap.Error(err))
		}
	})
	if err == nil {
		err = h.uc.Connect(connCtx, caller)
	}
	if err != nil {
		logger.Log.Error("websocket activate failed", zap.String("user_id", caller.UserID), zap.Error(err))
		_ = w.send(domain.NewError("Failed to connect"))
		h.setState(caller, domain.ConnDisconnected)
		cancel()
		conn.Close()
		return
	}
	metrics.ActiveConnections.Inc()
	h.setState(caller, domain.ConnActive)

	defer func() {
		cancel()
		closeCtx, done := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.WriteWait)
		h.uc.Disconnect(closeCtx, caller)
		done()
		metrics.ActiveConnections.Dec()
		conn.Close()
		h.setState(caller, domain.ConnDisconnected)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		h.uc.Touch(connCtx, caller)
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket close frame", zap.String("user_id", caller.UserID), zap.Int("code", code))
		return nil
	})

	go h.keepalive(connCtx, w, caller)

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("user_id", caller.UserID))
			} else {
				logger.Log.Warn("websocket read error", zap.String("user_id", caller.UserID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			_ = w.send(domain.NewError("unsupported message type"))
			continue
		}
		h.dispatch(connCtx, w, caller, message)
	}
}

func (h *ChatWebsocketHandler) keepalive(ctx context.Context, w *connWriter, caller Caller) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.ping(); err != nil {
				logger.Log.Debug("ping failed", zap.String("user_id", caller.UserID), zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *ChatWebsocketHandler) decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}

func eventLabel(e domain.Event) string {
	switch e {
	case domain.SendMessage, domain.TypingStart, domain.TypingStop, domain.MarkRead,
		domain.ConnectionRequest, domain.ConnectionResponse:
		return string(e)
	}
	return "unknown"
}

func (h *ChatWebsocketHandler) dispatch(ctx context.Context, w *connWriter, caller Caller, raw []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		metrics.EventsTotal.WithLabelValues("malformed").Inc()
		h.reply(w, caller, "", nil, fmt.Errorf("%w: malformed json", domain.ErrInvalidPayload))
		return
	}
	metrics.EventsTotal.WithLabelValues(eventLabel(req.Event)).Inc()

	var (
		resp *domain.WSResponse
		// follow is written right after the ack
		follow *domain.WSResponse
		err    error
	)
	switch req.Event {
	case domain.SendMessage:
		var in domain.SendMessageRequest
		if err = h.decode(req.Data, &in); err == nil {
			var sent *SendResult
			if sent, err = h.uc.SendMessage(ctx, caller, in); err == nil {
				resp = &domain.WSResponse{Event: domain.MessageSent, Data: sent.Ack}
				follow = &domain.WSResponse{Event: domain.ConversationUpdated, Data: sent.Update}
			}
		}

	case domain.TypingStart, domain.TypingStop:
		var in domain.TypingRequest
		if err = h.decode(req.Data, &in); err == nil {
			h.uc.Typing(ctx, caller, in.RecipientID, req.Event == domain.TypingStart)
		}

	case domain.MarkRead:
		var in domain.MarkReadRequest
		if err = h.decode(req.Data, &in); err == nil {
			var read *domain.MessageReadPayload
			if read, err = h.uc.MarkRead(ctx, caller, in.MessageID); err == nil && read != nil {
				resp = &domain.WSResponse{Event: domain.MessageRead, Data: read}
			}
		}

	case domain.ConnectionRequest:
		var in domain.ConnectionRequestPayload
		if err = h.decode(req.Data, &in); err == nil {
			var sent *domain.ConnectionPayload
			if sent, err = h.uc.RequestConnection(ctx, caller, in); err == nil {
				resp = &domain.WSResponse{Event: domain.ConnectionRequestSent, Data: sent}
			}
		}

	case domain.ConnectionResponse:
		var in domain.ConnectionResponsePayload
		if err = h.decode(req.Data, &in); err == nil {
			var sent *domain.ConnectionPayload
			if sent, err = h.uc.RespondConnection(ctx, caller, in); err == nil {
				resp = &domain.WSResponse{Event: domain.ConnectionResponseSent, Data: sent}
			}
		}

	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownEvent, req.Event)
	}

	h.reply(w, caller, req.Event, resp, err)
	if follow != nil {
		h.reply(w, caller, req.Event, follow, nil)
	}
}

// reply writes the caller's ack, or the error event when err is set
func (h *ChatWebsocketHandler) reply(w *connWriter, caller Caller, event domain.Event, resp *domain.WSResponse, err error) {
	if err != nil {
		msg := err.Error()
		if !IsClientError(err) {
			logger.Log.Debug("websocket event failed",
				zap.String("user_id", caller.UserID),
				zap.String("event", string(event)),
				zap.Error(err))
			msg = failureMessage(event)
		} else {
			logger.Log.Debug("websocket event rejected",
				zap.String("user_id", caller.UserID),
				zap.String("event", string(event)),
				zap.Error(err))
		}
		resp = &domain.WSResponse{Event: domain.Error, Data: domain.ErrorPayload{Message: msg}}
	}
	if resp == nil {
		return
	}
	if werr := w.send(*resp); werr != nil && !errors.Is(werr, context.Canceled) {
		logger.Log.Debug("write message error", zap.String("user_id", caller.UserID), zap.Error(werr))
	}
}

func failureMessage(event domain.Event) string {
	switch event {
	case domain.SendMessage:
		return "Failed to send message"
	case domain.MarkRead:
		return "Failed to mark message as read"
	}
	return "Internal server error"
}
