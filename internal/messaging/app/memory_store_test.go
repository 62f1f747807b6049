package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"

	"github.com/google/uuid"
)

// memoryStore in-memory identity, message and conversation stores for
// tests that exercise the whole event flow
type memoryStore struct {
	mu       sync.Mutex
	roles    map[string]domain.Role
	names    map[string]string
	messages []*domain.Message
	convs    map[string]*domain.Conversation
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles: make(map[string]domain.Role),
		names: make(map[string]string),
		convs: make(map[string]*domain.Conversation),
	}
}

func (s *memoryStore) addUser(id string, role domain.Role, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[id] = role
	s.names[id] = name
}

func (s *memoryStore) ResolveRole(_ context.Context, userID string) (domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[userID], nil
}

func (s *memoryStore) FindIdentity(_ context.Context, userID string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[userID]
	if !ok {
		return nil, nil
	}
	return &domain.Identity{ID: userID, Name: s.names[userID], Role: role}, nil
}

func (s *memoryStore) EnsureIndexes(context.Context) error {
	return nil
}

func (s *memoryStore) Create(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *msg
	now := time.Now().UTC().Truncate(time.Millisecond)
	stored.ID = uuid.New().String()
	stored.IsRead = false
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.messages = append(s.messages, &stored)
	out := stored
	return &out, nil
}

func (s *memoryStore) MarkRead(_ context.Context, messageID, readerID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID != messageID || m.RecipientID != readerID {
			continue
		}
		if !m.IsRead {
			now := time.Now().UTC()
			m.IsRead, m.ReadAt, m.UpdatedAt = true, &now, now
		}
		out := *m
		return &out, nil
	}
	return nil, nil
}

func (s *memoryStore) FindByID(_ context.Context, messageID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			out := *m
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ListThread(_ context.Context, a, b string, _, _ int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Message{}
	for _, m := range s.messages {
		if domain.PairKey(m.SenderID, m.RecipientID) == domain.PairKey(a, b) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memoryStore) FindByPair(_ context.Context, a, b string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[domain.PairKey(a, b)]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *memoryStore) UpsertOnMessage(_ context.Context, a, b string, msg *domain.Message) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.PairKey(a, b)
	c, ok := s.convs[key]
	if !ok {
		participants, types := domain.ParticipantTypesFor(msg)
		c = &domain.Conversation{
			ID:               uuid.New().String(),
			PairKey:          key,
			Participants:     participants,
			ParticipantTypes: types,
			CreatedAt:        time.Now().UTC(),
		}
		s.convs[key] = c
	}
	last := *msg
	c.LastMessage = &last
	c.LastMessageAt = msg.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.UnreadCount++
	out := *c
	return &out, nil
}

func (s *memoryStore) MarkConversationRead(_ context.Context, userID, otherUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[domain.PairKey(userID, otherUserID)]; ok {
		c.UnreadCount = 0
	}
	return nil
}

func (s *memoryStore) ListForUser(_ context.Context, userID string, _, _ int) ([]domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Conversation{}
	for _, c := range s.convs {
		if c.OtherParticipant(userID) != "" && (c.Participants[0] == userID || c.Participants[1] == userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (s *memoryStore) PeersOf(ctx context.Context, userID string) ([]string, error) {
	convs, _ := s.ListForUser(ctx, userID, 0, 0)
	peers := make([]string, 0, len(convs))
	for i := range convs {
		peers = append(peers, convs[i].OtherParticipant(userID))
	}
	return peers, nil
}

func (s *memoryStore) lastMessage() *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	out := *s.messages[len(s.messages)-1]
	return &out
}
