package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"social_chat_service/internal/chat/domain"

	"github.com/google/uuid"
)

// MemoryStore in-process ChatStore, used by local runs and tests
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[string]*domain.Conversation
	pairs         map[[2]string]string
	messages      map[string][]domain.Message
	clientIDs     map[[2]string]domain.Message

	now func() time.Time
}

// NewMemoryStore create MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*domain.Conversation),
		pairs:         make(map[[2]string]string),
		messages:      make(map[string][]domain.Message),
		clientIDs:     make(map[[2]string]domain.Message),
		now:           time.Now,
	}
}

// SetClock replace the time source
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) FindOrCreate(_ context.Context, memberA, memberB string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{memberA, memberB}
	if id, ok := s.pairs[key]; ok {
		c := *s.conversations[id]
		return &c, nil
	}

	c := &domain.Conversation{
		ID:        uuid.New().String(),
		MemberA:   memberA,
		MemberB:   memberB,
		CreatedAt: s.now().UTC(),
	}
	s.conversations[c.ID] = c
	s.pairs[key] = c.ID

	out := *c
	return &out, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListByMember(_ context.Context, memberID string) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Conversation, 0)
	for _, c := range s.conversations {
		if c.HasMember(memberID) {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return inboxLess(out[i], out[j])
	})
	return out, nil
}

// inboxLess lastMessageAt desc, never-messaged last, then createdAt desc
func inboxLess(x, y domain.Conversation) bool {
	switch {
	case x.LastMessageAt != nil && y.LastMessageAt != nil:
		if !x.LastMessageAt.Equal(*y.LastMessageAt) {
			return x.LastMessageAt.After(*y.LastMessageAt)
		}
	case x.LastMessageAt != nil:
		return true
	case y.LastMessageAt != nil:
		return false
	}
	return x.CreatedAt.After(y.CreatedAt)
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID, memberID string, at time.Time) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok || !c.HasMember(memberID) {
		return nil, ErrNotFound
	}
	c.ApplyRead(memberID, at.UTC())
	out := *c
	return &out, nil
}

func (s *MemoryStore) Latest(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	start := len(msgs) - limit
	if start < 0 {
		start = 0
	}
	return copyMessages(msgs[start:]), nil
}

func (s *MemoryStore) Since(_ context.Context, conversationID string, after time.Time, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].CreatedAt.After(after) })
	end := i + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return copyMessages(msgs[i:end]), nil
}

func (s *MemoryStore) Before(_ context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	end := sort.Search(len(msgs), func(i int) bool { return !msgs[i].CreatedAt.Before(before) })
	start := end - limit
	if start < 0 {
		start = 0
	}
	return copyMessages(msgs[start:end]), nil
}

func (s *MemoryStore) Append(_ context.Context, msg domain.Message) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return nil, false, ErrNotFound
	}

	if msg.ClientID != "" {
		if prev, ok := s.clientIDs[[2]string{msg.SenderID, msg.ClientID}]; ok {
			return &prev, false, nil
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = c.NextMessageTime(s.now(), time.Microsecond)

	s.messages[c.ID] = append(s.messages[c.ID], msg)
	if msg.ClientID != "" {
		s.clientIDs[[2]string{msg.SenderID, msg.ClientID}] = msg
	}
	c.ApplyMessage(msg)

	return &msg, true, nil
}

func copyMessages(src []domain.Message) []domain.Message {
	out := make([]domain.Message, len(src))
	copy(out, src)
	return out
}
