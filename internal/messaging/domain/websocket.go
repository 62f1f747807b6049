package domain

import "encoding/json"

// Event websocket event name
type Event string

// client -> server
const (
	// SendMessage persist and deliver a message
	SendMessage Event = "send-message"
	// TypingStart caller started typing to recipientId
	TypingStart Event = "typing-start"
	// TypingStop caller stopped typing to recipientId
	TypingStop Event = "typing-stop"
	// MarkRead caller read messageId
	MarkRead Event = "mark-read"
	// ConnectionRequest relay a connection request
	ConnectionRequest Event = "connection-request"
	// ConnectionResponse relay an answer to a connection request
	ConnectionResponse Event = "connection-response"
)

// server -> client
const (
	// MessageSent ack of send-message to the sender
	MessageSent Event = "message-sent"
	// NewMessage delivered to the recipient
	NewMessage Event = "new-message"
	// ConversationUpdated conversation summary changed
	ConversationUpdated Event = "conversation-updated"
	// UserStatusChange peer went online or offline
	UserStatusChange Event = "user-status-change"
	// MessageRead a message was read by its recipient
	MessageRead Event = "message-read"
	// UserTyping peer is typing
	UserTyping Event = "user-typing"
	// UserStoppedTyping peer stopped typing
	UserStoppedTyping Event = "user-stopped-typing"
	// ConnectionRequestSent ack of connection-request
	ConnectionRequestSent Event = "connection-request-sent"
	// ConnectionResponseSent ack of connection-response
	ConnectionResponseSent Event = "connection-response-sent"
	// Error failure report to the caller only
	Error Event = "error"
)

// WSRequest inbound frame
type WSRequest struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSResponse outbound frame
type WSResponse struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// SendMessageRequest send-message payload
type SendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

// TypingRequest typing-start / typing-stop payload
type TypingRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

// MarkReadRequest mark-read payload
type MarkReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

// ConnectionRequestPayload connection-request payload
type ConnectionRequestPayload struct {
	RecipientID   string `json:"recipientId" validate:"required"`
	RequesterType string `json:"requesterType,omitempty"`
	RecipientType string `json:"recipientType,omitempty"`
}

// ConnectionResponsePayload connection-response payload
type ConnectionResponsePayload struct {
	ConnectionID string `json:"connectionId" validate:"required"`
	Status       string `json:"status" validate:"required,oneof=accepted rejected"`
	// RequesterID optional, the gateway remembers requests it relayed
	RequesterID string `json:"requesterId,omitempty"`
}

// Connection relayed connection-request / connection-response body
type Connection struct {
	ID            string `json:"id"`
	RequesterID   string `json:"requesterId"`
	RecipientID   string `json:"recipientId"`
	RequesterType string `json:"requesterType,omitempty"`
	RecipientType string `json:"recipientType,omitempty"`
	Status        string `json:"status"`
}

// MessageSentPayload message-sent body
type MessageSentPayload struct {
	MessageID      string   `json:"messageId"`
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message"`
}

// NewMessagePayload new-message body
type NewMessagePayload struct {
	Message        *Message `json:"message"`
	ConversationID string   `json:"conversationId"`
	Sender         Identity `json:"sender"`
}

// ConversationUpdatedPayload conversation-updated body
type ConversationUpdatedPayload struct {
	ConversationID string   `json:"conversationId"`
	LastMessage    *Message `json:"lastMessage"`
	UnreadCount    int      `json:"unreadCount"`
}

// UserStatusPayload user-status-change body
type UserStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// MessageReadPayload message-read body
type MessageReadPayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload user-typing / user-stopped-typing body
type TypingPayload struct {
	UserID string `json:"userId"`
}

// ConnectionPayload connection-* body
type ConnectionPayload struct {
	Connection Connection `json:"connection"`
}

// ErrorPayload error body
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewError builds an error frame.
func NewError(msg string) WSResponse {
	return WSResponse{Event: Error, Data: ErrorPayload{Message: msg}}
}
