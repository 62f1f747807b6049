package database

import (
	"context"
	"fmt"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// NewMongoDB create a new MongoDB connection, retrying connect+ping
// RetryCount times with exponential backoff starting at RetryInterval.
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().ApplyURI(c.ConnectStr)

	var client *mongo.Client
	attempt := 0
	connect := func() error {
		attempt++
		cli, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := cli.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = cli.Disconnect(ctx)
			logger.Log.Warn("mongo ping failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		client = cli
		return nil
	}

	if err := backoff.Retry(connect, retryPolicy(ctx, c)); err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", attempt, err)
	}

	return &MongoDB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

// Close disconnect mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func retryPolicy(ctx context.Context, c Connection) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.RetryInterval > 0 {
		b.InitialInterval = c.RetryInterval
	}
	b.MaxElapsedTime = 0
	retries := c.RetryCount
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
