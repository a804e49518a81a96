package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibemeet/vibemeet/internal/domain"
)

func TestMemoryMessagesOrderAndLimit(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	base := time.Now()
	for i, text := range []string{"one", "two", "three"} {
		err := m.SaveMessage(ctx, &domain.Message{
			ID:        text,
			RoomID:    "r1",
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := m.Messages(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)

	all, err := m.Messages(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemorySaveMessageReplacesInPlace(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.SaveMessage(ctx, &domain.Message{ID: "m1", RoomID: "r1", Text: "thinking...", Loading: true}))
	require.NoError(t, m.SaveMessage(ctx, &domain.Message{ID: "m1", RoomID: "r1", Text: "the answer"}))

	msgs, err := m.Messages(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "the answer", msgs[0].Text)
	assert.False(t, msgs[0].Loading)
}

func TestMemoryMessageCap(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	for i := 0; i < memMessageCap+1; i++ {
		require.NoError(t, m.SaveMessage(ctx, &domain.Message{
			ID:     fmt.Sprintf("m%d", i),
			RoomID: "r1",
		}))
	}
	msgs, err := m.Messages(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, memMessageKeep)
}

func TestMemoryParticipantUpsertAndUpdate(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	now := time.Now()

	p := domain.Participant{RoomID: "r1", UserID: "u1", Name: "alice", Status: domain.StatusOnline, JoinTime: now, ConnID: "c1"}
	require.NoError(t, m.UpsertParticipant(ctx, &p))
	// Upsert is idempotent per (room, user).
	p.ConnID = "c2"
	require.NoError(t, m.UpsertParticipant(ctx, &p))

	ps, err := m.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, domain.ConnID("c2"), ps[0].ConnID)

	require.NoError(t, m.UpdateParticipant(ctx, "r1", "u1", domain.OfflineUpdate(now)))
	ps, err = m.Participants(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, ps[0].Status)
	assert.Empty(t, ps[0].ConnID)

	err = m.UpdateParticipant(ctx, "r1", "nobody", domain.SeenUpdate(now))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFindParticipantByConn(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.UpsertParticipant(ctx, &domain.Participant{RoomID: "r1", UserID: "u1", Name: "alice", ConnID: "c1"}))

	p, err := m.FindParticipantByConn(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), p.UserID)
	assert.Equal(t, domain.RoomID("r1"), p.RoomID)

	_, err = m.FindParticipantByConn(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.FindParticipantByConn(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMarkStaleOffline(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpsertParticipant(ctx, &domain.Participant{
		RoomID: "r1", UserID: "stale", Status: domain.StatusOnline,
		LastSeen: now.Add(-10 * time.Minute), ConnID: "c1",
	}))
	require.NoError(t, m.UpsertParticipant(ctx, &domain.Participant{
		RoomID: "r1", UserID: "fresh", Status: domain.StatusOnline,
		LastSeen: now, ConnID: "c2",
	}))

	n, err := m.MarkStaleOffline(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ps, err := m.Participants(ctx, "r1")
	require.NoError(t, err)
	for _, p := range ps {
		if p.UserID == "stale" {
			assert.Equal(t, domain.StatusOffline, p.Status)
			assert.Empty(t, p.ConnID)
		} else {
			assert.Equal(t, domain.StatusOnline, p.Status)
		}
	}
}

func TestMemoryDeleteRoomCounts(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	now := time.Now()

	room, err := domain.NewRoom("r1", "u1", "alice", now)
	require.NoError(t, err)
	require.NoError(t, m.CreateRoom(ctx, room))
	require.NoError(t, m.SaveMessage(ctx, &domain.Message{ID: "m1", RoomID: "r1"}))
	require.NoError(t, m.SaveMessage(ctx, &domain.Message{ID: "m2", RoomID: "r1"}))
	require.NoError(t, m.UpsertParticipant(ctx, &domain.Participant{RoomID: "r1", UserID: "u1"}))

	purged, err := m.DeleteRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged.Messages)
	assert.Equal(t, int64(1), purged.Participants)

	_, err = m.Room(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a room twice is harmless.
	purged, err = m.DeleteRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, purged.Messages)
}

func TestMemoryCreateRoomKeepsFirstCreator(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	now := time.Now()

	first, err := domain.NewRoom("r1", "u1", "alice", now)
	require.NoError(t, err)
	second, err := domain.NewRoom("r1", "u2", "bob", now)
	require.NoError(t, err)

	require.NoError(t, m.CreateRoom(ctx, first))
	require.NoError(t, m.CreateRoom(ctx, second))

	room, err := m.Room(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), room.CreatorID)
}

func TestMemoryParticipantsOrderedByJoinTime(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	base := time.Now()

	// Inserted out of join order on purpose.
	for _, p := range []struct {
		user   domain.UserID
		offset time.Duration
	}{
		{"u3", 2 * time.Minute},
		{"u1", 0},
		{"u2", time.Minute},
	} {
		require.NoError(t, m.UpsertParticipant(ctx, &domain.Participant{
			RoomID: "r1", UserID: p.user, Name: string(p.user), JoinTime: base.Add(p.offset),
		}))
	}

	ps, err := m.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.Equal(t, domain.UserID("u1"), ps[0].UserID)
	assert.Equal(t, domain.UserID("u2"), ps[1].UserID)
	assert.Equal(t, domain.UserID("u3"), ps[2].UserID)
}

func TestMemoryReportsNoDurableBackend(t *testing.T) {
	assert.False(t, NewMemory(0).Connected())
}

func TestMemoryPurgeExpired(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.SaveMessage(ctx, &domain.Message{ID: "old", RoomID: "r1", Timestamp: now.Add(-2 * time.Hour)}))
	require.NoError(t, m.SaveMessage(ctx, &domain.Message{ID: "new", RoomID: "r1", Timestamp: now}))

	dropped := m.PurgeExpired(now)
	assert.Equal(t, 1, dropped)

	msgs, err := m.Messages(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].ID)
}
