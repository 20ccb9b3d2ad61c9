package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/devteam/pkg/models"
)

func request(content string) models.Message {
	return models.Message{
		SenderRole:    models.RoleCoordinator,
		RecipientRole: models.RoleFrontend,
		Kind:          models.MessageKindRequest,
		Content:       content,
	}
}

func TestStore_AppendAssignsSequence(t *testing.T) {
	s := NewStore()
	id := s.Create("task-1", models.RoleCoordinator, models.RoleFrontend)

	for i := 1; i <= 3; i++ {
		m, err := s.Append(id, request(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, m.Sequence)
		assert.Equal(t, id, m.ConversationID)
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	}

	taskID, err := s.TaskID(id)
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)

	n, err := s.Len(id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_UnknownConversation(t *testing.T) {
	s := NewStore()

	_, err := s.Append("missing", request("x"))
	assert.ErrorIs(t, err, ErrUnknownConversation)

	_, err = s.History("missing")
	assert.ErrorIs(t, err, ErrUnknownConversation)

	assert.ErrorIs(t, s.Archive(context.Background(), "missing"), ErrUnknownConversation)
}

func TestStore_RejectsForeignRole(t *testing.T) {
	s := NewStore()
	id := s.Create("task-1", models.RoleCoordinator, models.RoleFrontend)

	_, err := s.Append(id, models.Message{
		SenderRole:    models.RoleBackend,
		RecipientRole: models.RoleCoordinator,
		Kind:          models.MessageKindResponse,
		Content:       "not mine",
	})
	assert.ErrorIs(t, err, ErrForeignRole)

	n, _ := s.Len(id)
	assert.Equal(t, 0, n)
}

func TestStore_HistoryIsReplayableSnapshot(t *testing.T) {
	s := NewStore()
	id := s.Create("task-1")
	_, _ = s.Append(id, request("a"))
	_, _ = s.Append(id, request("b"))

	hist, err := s.History(id)
	require.NoError(t, err)

	// Later appends do not leak into an existing history.
	_, _ = s.Append(id, request("c"))

	collect := func() []string {
		var out []string
		for m := range hist {
			out = append(out, m.Content)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, collect())
	assert.Equal(t, []string{"a", "b"}, collect())

	// Early break is honoured.
	count := 0
	for range hist {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestStore_MessagesReturnsCopy(t *testing.T) {
	s := NewStore()
	id := s.Create("task-1")
	_, _ = s.Append(id, request("original"))

	msgs, err := s.Messages(id)
	require.NoError(t, err)
	msgs[0].Content = "mutated"

	again, _ := s.Messages(id)
	assert.Equal(t, "original", again[0].Content)
}

type recordingArchiver struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (r *recordingArchiver) ArchiveConversation(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return r.err
}

func TestStore_ArchiveIsReadOnlyAndIdempotent(t *testing.T) {
	arch := &recordingArchiver{}
	s := NewStore(WithArchiver(arch))
	id := s.Create("task-1", models.RoleCoordinator, models.RoleFrontend)
	_, _ = s.Append(id, request("a"))

	require.NoError(t, s.Archive(context.Background(), id))
	require.NoError(t, s.Archive(context.Background(), id))

	_, err := s.Append(id, request("late"))
	assert.ErrorIs(t, err, ErrConversationArchived)

	archived, _ := s.IsArchived(id)
	assert.True(t, archived)

	first, _ := s.Messages(id)
	second, _ := s.Messages(id)
	assert.Equal(t, first, second)

	require.Len(t, arch.snaps, 1)
	assert.Equal(t, "task-1", arch.snaps[0].TaskID)
	assert.Len(t, arch.snaps[0].Messages, 1)
	assert.True(t, arch.snaps[0].Archived)
}

func TestStore_ArchiverErrorIsReported(t *testing.T) {
	arch := &recordingArchiver{err: errors.New("disk full")}
	s := NewStore(WithArchiver(arch))
	id := s.Create("task-1")

	err := s.Archive(context.Background(), id)
	assert.ErrorContains(t, err, "disk full")

	// The conversation is still read-only.
	_, err = s.Append(id, request("x"))
	assert.ErrorIs(t, err, ErrConversationArchived)
}

func TestStore_ConcurrentAppendsAreGapFree(t *testing.T) {
	s := NewStore()
	const convs = 8
	const perConv = 50

	ids := make([]string, convs)
	for i := range ids {
		ids[i] = s.Create(fmt.Sprintf("task-%d", i))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		// Several writers per conversation plus writers across conversations.
		for w := 0; w < 5; w++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for j := 0; j < perConv/5; j++ {
					_, err := s.Append(id, request("x"))
					assert.NoError(t, err)
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		msgs, err := s.Messages(id)
		require.NoError(t, err)
		require.Len(t, msgs, perConv)
		for i, m := range msgs {
			assert.Equal(t, i+1, m.Sequence)
		}
	}
	assert.Len(t, s.IDs(), convs)
}
