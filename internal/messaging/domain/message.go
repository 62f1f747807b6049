package domain

import (
	"sort"
	"strings"
	"time"
)

// Role identity partition a user id belongs to
type Role string

const (
	// RoleStudent user found in the students collection
	RoleStudent Role = "student"
	// RoleAlumni user found in the alumni collection
	RoleAlumni Role = "alumni"
	// RoleAdmin user found in the admins collection
	RoleAdmin Role = "admin"
	// RoleUnknown user found in no partition
	RoleUnknown Role = ""
)

// IsValid reports whether r is one of the three partitions.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleAlumni, RoleAdmin:
		return true
	}
	return false
}

// MessageTypeText default message type
const MessageTypeText = "text"

// Message a single persisted message between two users
type Message struct {
	ID            string     `bson:"_id" json:"id"`
	SenderID      string     `bson:"senderId" json:"senderId"`
	RecipientID   string     `bson:"recipientId" json:"recipientId"`
	SenderType    Role       `bson:"senderType" json:"senderType"`
	RecipientType Role       `bson:"recipientType" json:"recipientType"`
	Content       string     `bson:"content" json:"content"`
	MessageType   string     `bson:"messageType" json:"messageType"`
	IsRead        bool       `bson:"isRead" json:"isRead"`
	ReadAt        *time.Time `bson:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Conversation one document per unordered pair of participants
type Conversation struct {
	ID               string    `bson:"_id" json:"id"`
	PairKey          string    `bson:"pairKey" json:"-"`
	Participants     []string  `bson:"participants" json:"participants"`
	ParticipantTypes []Role    `bson:"participantTypes" json:"participantTypes"`
	LastMessage      *Message  `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt    time.Time `bson:"lastMessageAt" json:"lastMessageAt"`
	UnreadCount      int       `bson:"unreadCount" json:"unreadCount"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt" json:"updatedAt"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// Identity a resolved user with a display name
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"userType"`
}

// NormalizePair orders two user ids so (a,b) and (b,a) are the same pair.
func NormalizePair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// PairKey the unique key of the conversation between a and b.
func PairKey(a, b string) string {
	lo, hi := NormalizePair(a, b)
	return lo + ":" + hi
}

// ParticipantTypesFor aligns the sender and recipient roles with the
// normalized participant order.
func ParticipantTypesFor(msg *Message) ([]string, []Role) {
	lo, hi := NormalizePair(msg.SenderID, msg.RecipientID)
	if lo == msg.SenderID {
		return []string{lo, hi}, []Role{msg.SenderType, msg.RecipientType}
	}
	return []string{lo, hi}, []Role{msg.RecipientType, msg.SenderType}
}

// TrimContent removes surrounding whitespace from message content.
func TrimContent(s string) string {
	return strings.TrimSpace(s)
}
