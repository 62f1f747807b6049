package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository append only message log
type MessageRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, error)
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	ListThread(ctx context.Context, a, b string, page, pageSize int) ([]domain.Message, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll: db.Collection("messages"),
	}
}

func (r *messageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "recipientId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "senderId", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// Create stores msg as a new unread message and returns the stored copy.
func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	stored := *msg
	now := time.Now().UTC().Truncate(time.Millisecond)
	stored.ID = uuid.New().String()
	stored.IsRead = false
	stored.ReadAt = nil
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.MessageType == "" {
		stored.MessageType = domain.MessageTypeText
	}

	if _, err := r.coll.InsertOne(ctx, &stored); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &stored, nil
}

// MarkRead flips isRead once and only for the recipient. A message that is
// already read is returned as is; nil, nil means the reader is not the
// recipient or the message does not exist.
func (r *messageRepository) MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": messageID, "recipientId": readerID, "isRead": false}
	update := bson.M{"$set": bson.M{"isRead": true, "readAt": now, "updatedAt": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if err == nil {
		return &msg, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mark message read: %w", err)
	}

	err = r.coll.FindOne(ctx, bson.M{"_id": messageID, "recipientId": readerID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find read message: %w", err)
	}
	return &msg, nil
}

func (r *messageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// ListThread both directions of the pair, oldest first.
func (r *messageRepository) ListThread(ctx context.Context, a, b string, page, pageSize int) ([]domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"senderId": a, "recipientId": b},
		bson.M{"senderId": b, "recipientId": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * pageSize)).SetLimit(int64(pageSize))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list thread: %w", err)
	}
	msgs := []domain.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode thread: %w", err)
	}
	return msgs, nil
}
