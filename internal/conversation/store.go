// Package conversation stores the ordered message history of each task.
//
// A Store is owned by one solve. Appends to one conversation are serialized
// by that conversation's mutex; different conversations never share a lock
// on the append path.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	// ErrUnknownConversation is returned for ids the store never issued.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrConversationArchived is returned when appending to an archived conversation.
	ErrConversationArchived = errors.New("conversation archived")
	// ErrForeignRole is returned when a message names a role outside the conversation's participants.
	ErrForeignRole = errors.New("role is not a participant of the conversation")
)

// Snapshot is a read-only copy of a conversation.
type Snapshot struct {
	ID           string
	TaskID       string
	Participants []models.Role
	Messages     []models.Message
	Archived     bool
}

// Archiver persists conversations once they become read-only.
type Archiver interface {
	ArchiveConversation(ctx context.Context, snap Snapshot) error
}

type conversation struct {
	mu           sync.Mutex
	id           string
	taskID       string
	participants []models.Role
	messages     []models.Message
	archived     bool
}

func (c *conversation) allows(r models.Role) bool {
	if len(c.participants) == 0 {
		return true
	}
	for _, p := range c.participants {
		if p == r {
			return true
		}
	}
	return false
}

// Store holds the conversations of one solve.
type Store struct {
	mu       sync.RWMutex
	convs    map[string]*conversation
	archiver Archiver
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithArchiver persists conversations when they are archived.
func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		convs: make(map[string]*conversation),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a conversation for taskID. When participants are given, only
// messages between those roles may be appended.
func (s *Store) Create(taskID string, participants ...models.Role) string {
	c := &conversation{
		id:           uuid.NewString(),
		taskID:       taskID,
		participants: append([]models.Role(nil), participants...),
	}

	s.mu.Lock()
	s.convs[c.id] = c
	s.mu.Unlock()

	return c.id
}

func (s *Store) get(id string) (*conversation, error) {
	s.mu.RLock()
	c, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	return c, nil
}

// Append adds msg to the end of the conversation and returns the stored
// message with its sequence number, id and timestamp filled in.
func (s *Store) Append(conversationID string, msg models.Message) (models.Message, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return models.Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.archived {
		return models.Message{}, fmt.Errorf("%w: %s", ErrConversationArchived, conversationID)
	}
	if !c.allows(msg.SenderRole) || !c.allows(msg.RecipientRole) {
		return models.Message{}, fmt.Errorf("%w: %s -> %s in %s", ErrForeignRole, msg.SenderRole, msg.RecipientRole, conversationID)
	}

	msg.ConversationID = c.id
	msg.Sequence = len(c.messages) + 1
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	c.messages = append(c.messages, msg)
	return msg, nil
}

// Messages returns a copy of the conversation's messages in order.
func (s *Store) Messages(conversationID string) ([]models.Message, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...), nil
}

// History returns a lazy sequence over the messages present at call time.
// The sequence can be ranged over any number of times.
func (s *Store) History(conversationID string) (iter.Seq[models.Message], error) {
	msgs, err := s.Messages(conversationID)
	if err != nil {
		return nil, err
	}
	return func(yield func(models.Message) bool) {
		for _, m := range msgs {
			if !yield(m) {
				return
			}
		}
	}, nil
}

// Len returns the number of messages in the conversation.
func (s *Store) Len(conversationID string) (int, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages), nil
}

// TaskID returns the task a conversation belongs to.
func (s *Store) TaskID(conversationID string) (string, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return "", err
	}
	return c.taskID, nil
}

// IsArchived reports whether the conversation is read-only.
func (s *Store) IsArchived(conversationID string) (bool, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.archived, nil
}

// Snapshot returns a copy of the whole conversation.
func (s *Store) Snapshot(conversationID string) (Snapshot, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), nil
}

func (c *conversation) snapshot() Snapshot {
	return Snapshot{
		ID:           c.id,
		TaskID:       c.taskID,
		Participants: append([]models.Role(nil), c.participants...),
		Messages:     append([]models.Message(nil), c.messages...),
		Archived:     c.archived,
	}
}

// Archive makes the conversation read-only and hands it to the archiver, if
// one is configured. Archiving twice is a no-op.
func (s *Store) Archive(ctx context.Context, conversationID string) error {
	c, err := s.get(conversationID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.archived {
		c.mu.Unlock()
		return nil
	}
	c.archived = true
	snap := c.snapshot()
	c.mu.Unlock()

	if s.archiver == nil {
		return nil
	}
	if err := s.archiver.ArchiveConversation(ctx, snap); err != nil {
		return fmt.Errorf("archive conversation %s: %w", conversationID, err)
	}
	return nil
}

// IDs returns the ids of every conversation in the store.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	return ids
}
