package client

import (
	"encoding/json"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
)

// duplicateWindow messages without ids that match on sender, recipient
// and content within this window are the same message
const duplicateWindow = 5 * time.Second

// wireMessage message as received, ids in whatever shape the server sent
type wireMessage struct {
	ID            interface{} `json:"id"`
	MongoID       interface{} `json:"_id"`
	SenderID      interface{} `json:"senderId"`
	RecipientID   interface{} `json:"recipientId"`
	SenderType    domain.Role `json:"senderType"`
	RecipientType domain.Role `json:"recipientType"`
	Content       string      `json:"content"`
	MessageType   string      `json:"messageType"`
	IsRead        bool        `json:"isRead"`
	ReadAt        *time.Time  `json:"readAt"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (w *wireMessage) toMessage() domain.Message {
	id := NormalizeID(w.ID)
	if id == "" {
		id = NormalizeID(w.MongoID)
	}
	return domain.Message{
		ID:            id,
		SenderID:      NormalizeID(w.SenderID),
		RecipientID:   NormalizeID(w.RecipientID),
		SenderType:    w.SenderType,
		RecipientType: w.RecipientType,
		Content:       w.Content,
		MessageType:   w.MessageType,
		IsRead:        w.IsRead,
		ReadAt:        w.ReadAt,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func decodeMessage(raw json.RawMessage) (domain.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Message{}, err
	}
	return w.toMessage(), nil
}

func decodeMessages(raw json.RawMessage) ([]domain.Message, error) {
	var ws []wireMessage
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(ws))
	for i := range ws {
		out = append(out, ws[i].toMessage())
	}
	return out, nil
}

// isDuplicate reports whether msg is already in thread.
func isDuplicate(thread []domain.Message, msg domain.Message) bool {
	for i := range thread {
		existing := thread[i]
		if existing.ID != "" && msg.ID != "" {
			if existing.ID == msg.ID {
				return true
			}
			continue
		}
		if existing.SenderID == msg.SenderID &&
			existing.RecipientID == msg.RecipientID &&
			existing.Content == msg.Content &&
			absDuration(existing.CreatedAt.Sub(msg.CreatedAt)) <= duplicateWindow {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// inThread reports whether msg belongs to the thread with peer. Every
// message a client sees involves its own user, so matching the peer on
// either side is enough.
func inThread(peer string, msg domain.Message) bool {
	return peer != "" && (msg.SenderID == peer || msg.RecipientID == peer)
}
