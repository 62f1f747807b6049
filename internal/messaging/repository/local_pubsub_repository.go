package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"go.uber.org/zap"
)

// ErrSubscriberBusy the subscriber did not drain its buffer in time
var ErrSubscriberBusy = errors.New("subscriber buffer full")

// PubSubRepository private per-user channels
type PubSubRepository interface {
	Publish(ctx context.Context, userID string, resp domain.WSResponse) error
	// Subscribe registers handler for userID's channel before returning and
	// keeps delivering until ctx is done.
	Subscribe(ctx context.Context, userID string, handler func(payload []byte)) error
}

// UserChannel name of the private channel of userID
func UserChannel(userID string) string {
	return fmt.Sprintf("chat:user:%s", userID)
}

const subscriberBuffer = 64

// LocalPubSub in process channel hub for single node deployments
type LocalPubSub struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]chan []byte
}

// NewLocalPubSub create LocalPubSub
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{subs: make(map[string]map[uint64]chan []byte)}
}

func (h *LocalPubSub) Publish(_ context.Context, userID string, resp domain.WSResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var errs []error
	for id, ch := range h.subs[UserChannel(userID)] {
		select {
		case ch <- data:
		default:
			// a stuck subscriber must not starve the others
			errs = append(errs, fmt.Errorf("subscriber %d: %w", id, ErrSubscriberBusy))
		}
	}
	return errors.Join(errs...)
}

func (h *LocalPubSub) Subscribe(ctx context.Context, userID string, handler func(payload []byte)) error {
	channel := UserChannel(userID)
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[uint64]chan []byte)
	}
	h.subs[channel][id] = ch
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.subs[channel], id)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			logger.Log.Debug("sub close", zap.String("channel", channel))
		}()
		for {
			select {
			case data := <-ch:
				handler(data)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
