package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisPubSub per-user channels over redis pub/sub, shared by every gateway process
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish serializes resp and publishes it on the user's channel
func (r *RedisPubSub) Publish(ctx context.Context, userID string, resp domain.WSResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, UserChannel(userID), data).Err()
}

// Subscribe waits for the subscription to be confirmed, then hands every
// payload to handler until ctx is done
func (r *RedisPubSub) Subscribe(ctx context.Context, userID string, handler func(payload []byte)) error {
	channel := UserChannel(userID)
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Debug("sub close", zap.String("channel", channel))
				return
			}
		}
	}()
	return nil
}
