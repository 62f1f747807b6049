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

// ConversationRepository one conversation per unordered pair of users
type ConversationRepository interface {
	EnsureIndexes(ctx context.Context) error
	FindByPair(ctx context.Context, a, b string) (*domain.Conversation, error)
	UpsertOnMessage(ctx context.Context, a, b string, msg *domain.Message) (*domain.Conversation, error)
	MarkConversationRead(ctx context.Context, userID, otherUserID string) error
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, error)
	PeersOf(ctx context.Context, userID string) ([]string, error)
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewMongoConversationRepository create a ConversationRepository
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{
		coll: db.Collection("conversations"),
	}
}

func (r *conversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}
	return nil
}

// FindByPair returns nil, nil when the pair never exchanged a message.
func (r *conversationRepository) FindByPair(ctx context.Context, a, b string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.coll.FindOne(ctx, bson.M{"pairKey": domain.PairKey(a, b)}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

// UpsertOnMessage creates the conversation on the first message of a pair
// and otherwise moves lastMessage forward and increments unreadCount.
func (r *conversationRepository) UpsertOnMessage(ctx context.Context, a, b string, msg *domain.Message) (*domain.Conversation, error) {
	if msg == nil {
		return nil, errors.New("upsert conversation: nil message")
	}
	participants, types := domain.ParticipantTypesFor(msg)
	if domain.PairKey(a, b) != domain.PairKey(participants[0], participants[1]) {
		// roles are only known for the message pair
		lo, hi := domain.NormalizePair(a, b)
		participants, types = []string{lo, hi}, []domain.Role{domain.RoleUnknown, domain.RoleUnknown}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"lastMessage":   msg,
			"lastMessageAt": msg.CreatedAt,
			"updatedAt":     now,
		},
		"$setOnInsert": bson.M{
			"_id":              uuid.New().String(),
			"participants":     participants,
			"participantTypes": types,
			"createdAt":        now,
		},
	}
	if msg.RecipientID == participants[0] || msg.RecipientID == participants[1] {
		update["$inc"] = bson.M{"unreadCount": 1}
	}

	filter := bson.M{"pairKey": domain.PairKey(a, b)}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv domain.Conversation
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv)
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race, the document exists now
		err = r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	return &conv, nil
}

// MarkConversationRead resets unreadCount, a no-op for unknown pairs.
func (r *conversationRepository) MarkConversationRead(ctx context.Context, userID, otherUserID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"pairKey": domain.PairKey(userID, otherUserID)},
		bson.M{"$set": bson.M{"unreadCount": 0, "updatedAt": time.Now().UTC().Truncate(time.Millisecond)}},
	)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

// ListForUser newest conversation first, pageSize 0 returns all.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}})
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * pageSize)).SetLimit(int64(pageSize))
	}

	cur, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := []domain.Conversation{}
	if err := cur.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

// PeersOf every user that shares a conversation with userID.
func (r *conversationRepository) PeersOf(ctx context.Context, userID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"participants": 1})
	cur, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find peers: %w", err)
	}
	var convs []domain.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode peers: %w", err)
	}

	peers := make([]string, 0, len(convs))
	for i := range convs {
		if other := convs[i].OtherParticipant(userID); other != "" {
			peers = append(peers, other)
		}
	}
	return peers, nil
}
