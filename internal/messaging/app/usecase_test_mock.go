package app

import (
	"context"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"

	"github.com/stretchr/testify/mock"
)

// MockIdentityRepository Mock IdentityRepository
type MockIdentityRepository struct {
	mock.Mock
}

// ResolveRole mock resolve role
func (m *MockIdentityRepository) ResolveRole(ctx context.Context, userID string) (domain.Role, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.Role), args.Error(1)
}

// FindIdentity mock find identity
func (m *MockIdentityRepository) FindIdentity(ctx context.Context, userID string) (*domain.Identity, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// EnsureIndexes mock ensure indexes
func (m *MockConversationRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// FindByPair mock find by pair
func (m *MockConversationRepository) FindByPair(ctx context.Context, a, b string) (*domain.Conversation, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpsertOnMessage mock upsert on message
func (m *MockConversationRepository) UpsertOnMessage(ctx context.Context, a, b string, msg *domain.Message) (*domain.Conversation, error) {
	args := m.Called(ctx, a, b, msg)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkConversationRead mock mark conversation read
func (m *MockConversationRepository) MarkConversationRead(ctx context.Context, userID, otherUserID string) error {
	return m.Called(ctx, userID, otherUserID).Error(0)
}

// ListForUser mock list for user
func (m *MockConversationRepository) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// PeersOf mock peers of
func (m *MockConversationRepository) PeersOf(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// EnsureIndexes mock ensure indexes
func (m *MockMessageRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Create mock create
func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead mock mark read
func (m *MockMessageRepository) MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, readerID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find by id
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListThread mock list thread
func (m *MockMessageRepository) ListThread(ctx context.Context, a, b string, page, pageSize int) ([]domain.Message, error) {
	args := m.Called(ctx, a, b, page, pageSize)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPubSubRepository Mock PubSubRepository
type MockPubSubRepository struct {
	mock.Mock
}

// Publish mock publish
func (m *MockPubSubRepository) Publish(ctx context.Context, userID string, resp domain.WSResponse) error {
	return m.Called(ctx, userID, resp).Error(0)
}

// Subscribe mock subscribe
func (m *MockPubSubRepository) Subscribe(ctx context.Context, userID string, handler func(payload []byte)) error {
	return m.Called(ctx, userID, handler).Error(0)
}
