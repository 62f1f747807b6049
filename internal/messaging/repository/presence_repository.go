package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/database"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PresenceRepository maps an online user id to its live connection.
// Last connected wins: Register replaces any previous entry.
type PresenceRepository interface {
	Register(ctx context.Context, entry domain.PresenceEntry) error
	// Unregister removes the entry only while it still belongs to connID.
	Unregister(ctx context.Context, userID, connID string) bool
	Lookup(ctx context.Context, userID string) (domain.PresenceEntry, bool)
	// Touch refreshes the entry expiry for connID.
	Touch(ctx context.Context, userID, connID string) error
}

// MemoryPresence process local registry
type MemoryPresence struct {
	mu      sync.RWMutex
	entries map[string]domain.PresenceEntry
}

// NewMemoryPresence create an empty registry
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{entries: make(map[string]domain.PresenceEntry)}
}

func (p *MemoryPresence) Register(_ context.Context, entry domain.PresenceEntry) error {
	entry.Online = true
	p.mu.Lock()
	p.entries[entry.UserID] = entry
	p.mu.Unlock()
	return nil
}

func (p *MemoryPresence) Unregister(_ context.Context, userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok || entry.ConnID != connID {
		return false
	}
	delete(p.entries, userID)
	return true
}

func (p *MemoryPresence) Lookup(_ context.Context, userID string) (domain.PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[userID]
	return entry, ok
}

func (p *MemoryPresence) Touch(context.Context, string, string) error {
	return nil
}

// compare-and-delete / compare-and-expire on the stored connId
var (
	unregisterScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if cjson.decode(v)['connId'] == ARGV[1] then return redis.call('DEL', KEYS[1]) end
return 0`)
	touchScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if cjson.decode(v)['connId'] == ARGV[1] then return redis.call('PEXPIRE', KEYS[1], ARGV[2]) end
return 0`)
)

// RedisPresence registry shared by every gateway process
type RedisPresence struct {
	client redis.UniversalClient
	store  database.RedisRepository[domain.PresenceEntry]
	ttl    time.Duration
}

// NewRedisPresence entries expire after ttl unless touched
func NewRedisPresence(client redis.UniversalClient, ttl time.Duration) *RedisPresence {
	return &RedisPresence{
		client: client,
		store:  database.NewRedisRepository[domain.PresenceEntry](client),
		ttl:    ttl,
	}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

func (p *RedisPresence) Register(ctx context.Context, entry domain.PresenceEntry) error {
	entry.Online = true
	if err := p.store.Set(ctx, presenceKey(entry.UserID), entry, p.ttl); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}
	return nil
}

func (p *RedisPresence) Unregister(ctx context.Context, userID, connID string) bool {
	n, err := unregisterScript.Run(ctx, p.client, []string{presenceKey(userID)}, connID).Int()
	if err != nil {
		logger.Log.Warn("unregister presence failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return n == 1
}

func (p *RedisPresence) Lookup(ctx context.Context, userID string) (domain.PresenceEntry, bool) {
	entry, err := p.store.Get(ctx, presenceKey(userID))
	if errors.Is(err, database.ErrNil) {
		return domain.PresenceEntry{}, false
	}
	if err != nil {
		logger.Log.Warn("lookup presence failed", zap.String("user_id", userID), zap.Error(err))
		return domain.PresenceEntry{}, false
	}
	return entry, true
}

func (p *RedisPresence) Touch(ctx context.Context, userID, connID string) error {
	err := touchScript.Run(ctx, p.client, []string{presenceKey(userID)}, connID, p.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}
