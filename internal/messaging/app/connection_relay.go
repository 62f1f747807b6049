package app

import (
	"sync"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
)

const pendingConnectionTTL = 24 * time.Hour

type pendingConnection struct {
	conn    domain.Connection
	created time.Time
}

// connectionRelay remembers who asked for a connection so a response that
// only carries the connection id can be routed back. Process local, nothing
// is persisted.
type connectionRelay struct {
	mu      sync.Mutex
	pending map[string]pendingConnection
	ttl     time.Duration
	now     func() time.Time
}

func newConnectionRelay(ttl time.Duration) *connectionRelay {
	return &connectionRelay{
		pending: make(map[string]pendingConnection),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *connectionRelay) remember(conn domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, p := range r.pending {
		if now.Sub(p.created) > r.ttl {
			delete(r.pending, id)
		}
	}
	r.pending[conn.ID] = pendingConnection{conn: conn, created: now}
}

// take returns and forgets the request answered by recipientID. An empty
// requesterID matches any requester.
func (r *connectionRelay) take(connectionID, recipientID, requesterID string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[connectionID]
	if !ok || p.conn.RecipientID != recipientID || r.now().Sub(p.created) > r.ttl {
		return domain.Connection{}, false
	}
	if requesterID != "" && requesterID != p.conn.RequesterID {
		return domain.Connection{}, false
	}
	delete(r.pending, connectionID)
	return p.conn, true
}
