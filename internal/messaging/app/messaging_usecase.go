package app

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/repository"
	errprocess "github.com/X9Cipher/alumni-portal-sub001/pkg/err"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Caller the authenticated user behind one connection or request
type Caller struct {
	UserID   string
	UserType domain.Role
	ConnID   string
}

// Options tunables of MessagingUseCase
type Options struct {
	MaxContentLength int
	// FallbackRole is used for recipients found in no role collection.
	// Empty rejects the send instead.
	FallbackRole domain.Role
	StoreTimeout time.Duration
}

// MessagingUseCase event semantics of the realtime messaging core,
// independent of the websocket transport
type MessagingUseCase struct {
	identityRepo repository.IdentityRepository
	convRepo     repository.ConversationRepository
	msgRepo      repository.MessageRepository
	presence     repository.PresenceRepository
	pubsub       repository.PubSubRepository
	relay        *connectionRelay
	opts         Options
}

// NewMessagingUseCase init messaging use case
func NewMessagingUseCase(
	identityRepo repository.IdentityRepository,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	presence repository.PresenceRepository,
	pubsub repository.PubSubRepository,
	opts Options,
) *MessagingUseCase {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	return &MessagingUseCase{
		identityRepo: identityRepo,
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		presence:     presence,
		pubsub:       pubsub,
		relay:        newConnectionRelay(pendingConnectionTTL),
		opts:         opts,
	}
}

// storeContext outlives the connection so a disconnect mid-send still
// completes the write.
func (uc *MessagingUseCase) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), uc.opts.StoreTimeout)
}

// Connect registers the caller's connection and tells present peers.
func (uc *MessagingUseCase) Connect(ctx context.Context, caller Caller) error {
	entry := domain.PresenceEntry{
		UserID:      caller.UserID,
		ConnID:      caller.ConnID,
		UserType:    caller.UserType,
		ConnectedAt: time.Now().UTC(),
	}
	if err := uc.presence.Register(ctx, entry); err != nil {
		return errprocess.Wrap("register presence", err, zap.String("user_id", caller.UserID))
	}
	uc.broadcastStatus(ctx, caller.UserID, true)
	return nil
}

// Disconnect removes the caller's presence entry. Peers are only told
// when the entry still belonged to this connection.
func (uc *MessagingUseCase) Disconnect(ctx context.Context, caller Caller) {
	if !uc.presence.Unregister(ctx, caller.UserID, caller.ConnID) {
		logger.Log.Debug("stale connection closed", zap.String("user_id", caller.UserID), zap.String("conn_id", caller.ConnID))
		return
	}
	uc.broadcastStatus(ctx, caller.UserID, false)
}

// Touch keepalive for the caller's presence entry.
func (uc *MessagingUseCase) Touch(ctx context.Context, caller Caller) {
	if err := uc.presence.Touch(ctx, caller.UserID, caller.ConnID); err != nil {
		logger.Log.Warn("touch presence failed", zap.String("user_id", caller.UserID), zap.Error(err))
	}
}

// IsOnline reports whether userID has a live connection.
func (uc *MessagingUseCase) IsOnline(ctx context.Context, userID string) bool {
	_, ok := uc.presence.Lookup(ctx, userID)
	return ok
}

func (uc *MessagingUseCase) broadcastStatus(ctx context.Context, userID string, online bool) {
	peers, err := uc.convRepo.PeersOf(ctx, userID)
	if err != nil {
		logger.Log.Warn("load peers failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	resp := domain.WSResponse{
		Event: domain.UserStatusChange,
		Data:  domain.UserStatusPayload{UserID: userID, IsOnline: online},
	}
	for _, peer := range peers {
		uc.push(ctx, peer, resp)
	}
}

// push delivers resp to userID when present. Failures are logged, never
// returned.
func (uc *MessagingUseCase) push(ctx context.Context, userID string, resp domain.WSResponse) {
	if _, ok := uc.presence.Lookup(ctx, userID); !ok {
		metrics.PushTotal.WithLabelValues(metrics.PushOffline).Inc()
		return
	}
	if err := uc.pubsub.Publish(ctx, userID, resp); err != nil {
		metrics.PushTotal.WithLabelValues(metrics.PushFailed).Inc()
		logger.Log.Warn("push failed",
			zap.String("user_id", userID),
			zap.String("event", string(resp.Event)),
			zap.Error(err))
		return
	}
	metrics.PushTotal.WithLabelValues(metrics.PushDelivered).Inc()
}

func (uc *MessagingUseCase) validateSend(caller Caller, req *domain.SendMessageRequest) (string, error) {
	if req.RecipientID == "" {
		return "", domain.ErrRecipientRequired
	}
	if req.RecipientID == caller.UserID {
		return "", domain.ErrSelfMessage
	}
	content := domain.TrimContent(req.Content)
	if content == "" {
		return "", domain.ErrEmptyContent
	}
	if uc.opts.MaxContentLength > 0 && utf8.RuneCountInString(content) > uc.opts.MaxContentLength {
		return "", domain.ErrContentTooLong
	}
	return content, nil
}

func (uc *MessagingUseCase) resolveRecipient(ctx context.Context, recipientID string) (domain.Role, error) {
	role, err := uc.identityRepo.ResolveRole(ctx, recipientID)
	if err != nil {
		return domain.RoleUnknown, errprocess.Wrap("resolve recipient", err, zap.String("recipient_id", recipientID))
	}
	if role != domain.RoleUnknown {
		return role, nil
	}
	if uc.opts.FallbackRole == domain.RoleUnknown {
		return domain.RoleUnknown, domain.ErrUnknownRecipient
	}
	metrics.IdentityFallback.Inc()
	logger.Log.Warn("recipient not found in any role collection, using fallback role",
		zap.String("recipient_id", recipientID),
		zap.String("fallback_role", string(uc.opts.FallbackRole)))
	return uc.opts.FallbackRole, nil
}

// SendResult what the sender gets back: the message-sent ack, then its own
// conversation-updated.
type SendResult struct {
	Ack    domain.MessageSentPayload
	Update domain.ConversationUpdatedPayload
}

// SendMessage persists the message, moves the conversation forward and
// pushes it to the recipient when online. The sender's frames are left to
// the caller so the ack goes out first.
func (uc *MessagingUseCase) SendMessage(ctx context.Context, caller Caller, req domain.SendMessageRequest) (*SendResult, error) {
	content, err := uc.validateSend(caller, &req)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()

	recipientType, err := uc.resolveRecipient(storeCtx, req.RecipientID)
	if err != nil {
		return nil, err
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	msg, err := uc.msgRepo.Create(storeCtx, &domain.Message{
		SenderID:      caller.UserID,
		RecipientID:   req.RecipientID,
		SenderType:    caller.UserType,
		RecipientType: recipientType,
		Content:       content,
		MessageType:   messageType,
	})
	if err != nil {
		metrics.PersistFailures.WithLabelValues("message").Inc()
		return nil, errprocess.Wrap("save message", err, zap.String("user_id", caller.UserID))
	}
	metrics.MessagesPersisted.Inc()

	conv, err := uc.convRepo.UpsertOnMessage(storeCtx, caller.UserID, req.RecipientID, msg)
	if err != nil {
		// the message stays stored
		metrics.PersistFailures.WithLabelValues("conversation").Inc()
		return nil, errprocess.Wrap("update conversation", err, zap.String("message_id", msg.ID))
	}

	update := domain.ConversationUpdatedPayload{
		ConversationID: conv.ID,
		LastMessage:    msg,
		UnreadCount:    conv.UnreadCount,
	}
	updated := domain.WSResponse{Event: domain.ConversationUpdated, Data: update}

	if _, ok := uc.presence.Lookup(storeCtx, req.RecipientID); ok {
		uc.push(storeCtx, req.RecipientID, domain.WSResponse{
			Event: domain.NewMessage,
			Data: domain.NewMessagePayload{
				Message:        msg,
				ConversationID: conv.ID,
				Sender:         uc.senderIdentity(storeCtx, caller),
			},
		})
		uc.push(storeCtx, req.RecipientID, updated)
	} else {
		metrics.PushTotal.WithLabelValues(metrics.PushOffline).Inc()
	}

	return &SendResult{
		Ack: domain.MessageSentPayload{
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			Message:        msg,
		},
		Update: update,
	}, nil
}

func (uc *MessagingUseCase) senderIdentity(ctx context.Context, caller Caller) domain.Identity {
	sender := domain.Identity{ID: caller.UserID, Role: caller.UserType}
	ident, err := uc.identityRepo.FindIdentity(ctx, caller.UserID)
	if err != nil {
		logger.Log.Warn("load sender identity failed", zap.String("user_id", caller.UserID), zap.Error(err))
		return sender
	}
	if ident != nil {
		sender.Name = ident.Name
	}
	return sender
}

// Typing forwards a typing indicator to the recipient when online.
func (uc *MessagingUseCase) Typing(ctx context.Context, caller Caller, recipientID string, typing bool) {
	event := domain.UserStoppedTyping
	if typing {
		event = domain.UserTyping
	}
	uc.push(ctx, recipientID, domain.WSResponse{
		Event: event,
		Data:  domain.TypingPayload{UserID: caller.UserID},
	})
}

// MarkRead marks a message read on behalf of its recipient and tells the
// sender. nil, nil means there was nothing the caller may mark.
func (uc *MessagingUseCase) MarkRead(ctx context.Context, caller Caller, messageID string) (*domain.MessageReadPayload, error) {
	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()

	msg, err := uc.msgRepo.MarkRead(storeCtx, messageID, caller.UserID)
	if err != nil {
		metrics.PersistFailures.WithLabelValues("mark_read").Inc()
		return nil, errprocess.Wrap("mark read", err, zap.String("message_id", messageID))
	}
	if msg == nil {
		logger.Log.Debug("mark-read ignored",
			zap.String("user_id", caller.UserID),
			zap.String("message_id", messageID))
		return nil, nil
	}

	payload := &domain.MessageReadPayload{MessageID: msg.ID}
	uc.push(storeCtx, msg.SenderID, domain.WSResponse{Event: domain.MessageRead, Data: *payload})
	return payload, nil
}

// RequestConnection relays a connection request. Nothing is stored.
func (uc *MessagingUseCase) RequestConnection(ctx context.Context, caller Caller, req domain.ConnectionRequestPayload) (*domain.ConnectionPayload, error) {
	if req.RecipientID == caller.UserID {
		return nil, domain.ErrSelfMessage
	}
	requesterType := req.RequesterType
	if requesterType == "" {
		requesterType = string(caller.UserType)
	}
	payload := &domain.ConnectionPayload{Connection: domain.Connection{
		ID:            uuid.New().String(),
		RequesterID:   caller.UserID,
		RecipientID:   req.RecipientID,
		RequesterType: requesterType,
		RecipientType: req.RecipientType,
		Status:        "pending",
	}}
	uc.relay.remember(payload.Connection)
	uc.push(ctx, req.RecipientID, domain.WSResponse{Event: domain.ConnectionRequest, Data: *payload})
	return payload, nil
}

// RespondConnection relays the answer to a connection request back to
// the requester. Without requesterId the requester is taken from the
// request this node relayed.
func (uc *MessagingUseCase) RespondConnection(ctx context.Context, caller Caller, req domain.ConnectionResponsePayload) (*domain.ConnectionPayload, error) {
	if req.Status != "accepted" && req.Status != "rejected" {
		return nil, fmt.Errorf("%w: status must be accepted or rejected", domain.ErrInvalidPayload)
	}
	conn := domain.Connection{
		ID:          req.ConnectionID,
		RequesterID: req.RequesterID,
		RecipientID: caller.UserID,
	}
	if pending, ok := uc.relay.take(req.ConnectionID, caller.UserID, req.RequesterID); ok {
		conn = pending
	} else if conn.RequesterID == "" {
		return nil, fmt.Errorf("%w: unknown connection %q", domain.ErrInvalidPayload, req.ConnectionID)
	}
	conn.Status = req.Status

	payload := &domain.ConnectionPayload{Connection: conn}
	uc.push(ctx, conn.RequesterID, domain.WSResponse{Event: domain.ConnectionResponse, Data: *payload})
	return payload, nil
}

// Conversations newest first for the HTTP conversation list.
func (uc *MessagingUseCase) Conversations(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, error) {
	return uc.convRepo.ListForUser(ctx, userID, page, pageSize)
}

// Thread history between userID and otherUserID, oldest first.
func (uc *MessagingUseCase) Thread(ctx context.Context, userID, otherUserID string, page, pageSize int) ([]domain.Message, error) {
	if otherUserID == "" {
		return nil, domain.ErrRecipientRequired
	}
	return uc.msgRepo.ListThread(ctx, userID, otherUserID, page, pageSize)
}

// MarkConversationRead resets the unread counter of the pair.
func (uc *MessagingUseCase) MarkConversationRead(ctx context.Context, userID, otherUserID string) error {
	if otherUserID == "" {
		return domain.ErrRecipientRequired
	}
	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	return uc.convRepo.MarkConversationRead(storeCtx, userID, otherUserID)
}

// IsClientError errors caused by the request rather than the stores.
func IsClientError(err error) bool {
	for _, target := range []error{
		domain.ErrRecipientRequired,
		domain.ErrSelfMessage,
		domain.ErrEmptyContent,
		domain.ErrContentTooLong,
		domain.ErrUnknownRecipient,
		domain.ErrUnknownEvent,
		domain.ErrInvalidPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
