package domain

import "time"

// PresenceEntry the live connection of an online user
type PresenceEntry struct {
	UserID      string    `json:"userId"`
	ConnID      string    `json:"connId"`
	UserType    Role      `json:"userType"`
	ConnectedAt time.Time `json:"connectedAt"`
	Online      bool      `json:"online"`
}

// ConnState lifecycle of one gateway connection
type ConnState string

const (
	// ConnConnecting handshake received, token not checked yet
	ConnConnecting ConnState = "connecting"
	// ConnAuthenticated token accepted
	ConnAuthenticated ConnState = "authenticated"
	// ConnActive presence registered and events served
	ConnActive ConnState = "active"
	// ConnDisconnected terminal state
	ConnDisconnected ConnState = "disconnected"
)
