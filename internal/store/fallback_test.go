package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibemeet/vibemeet/internal/domain"
)

var errDown = errors.New("backend down")

// brokenStore fails every operation, simulating a storage outage.
type brokenStore struct{}

func (brokenStore) SaveMessage(context.Context, *domain.Message) error { return errDown }
func (brokenStore) Messages(context.Context, domain.RoomID, int) ([]domain.Message, error) {
	return nil, errDown
}
func (brokenStore) UpsertParticipant(context.Context, *domain.Participant) error { return errDown }
func (brokenStore) UpdateParticipant(context.Context, domain.RoomID, domain.UserID, domain.ParticipantUpdate) error {
	return errDown
}
func (brokenStore) Participants(context.Context, domain.RoomID) ([]domain.Participant, error) {
	return nil, errDown
}
func (brokenStore) FindParticipantByConn(context.Context, domain.ConnID) (*domain.Participant, error) {
	return nil, errDown
}
func (brokenStore) MarkStaleOffline(context.Context, time.Time) (int64, error) { return 0, errDown }
func (brokenStore) Room(context.Context, domain.RoomID) (*domain.Room, error)  { return nil, errDown }
func (brokenStore) CreateRoom(context.Context, *domain.Room) error             { return errDown }
func (brokenStore) TouchRoom(context.Context, domain.RoomID, time.Time) error  { return errDown }
func (brokenStore) DeleteRoom(context.Context, domain.RoomID) (Purged, error)  { return Purged{}, errDown }
func (brokenStore) Connected() bool                                            { return false }

func TestFallbackServesFromMemoryDuringOutage(t *testing.T) {
	mem := NewMemory(0)
	fb := NewFallback(brokenStore{}, mem)
	ctx := context.Background()

	// Writes land in memory without surfacing the primary error.
	require.NoError(t, fb.SaveMessage(ctx, &domain.Message{ID: "m1", RoomID: "r1", Text: "hello"}))
	require.NoError(t, fb.UpsertParticipant(ctx, &domain.Participant{RoomID: "r1", UserID: "u1", Name: "alice", ConnID: "c1"}))

	msgs, err := fb.Messages(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	ps, err := fb.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, ps, 1)

	p, err := fb.FindParticipantByConn(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), p.UserID)

	assert.False(t, fb.Connected())
}

func TestFallbackRoomLifecycleDuringOutage(t *testing.T) {
	mem := NewMemory(0)
	fb := NewFallback(brokenStore{}, mem)
	ctx := context.Background()
	now := time.Now()

	room, err := domain.NewRoom("r1", "u1", "alice", now)
	require.NoError(t, err)
	require.NoError(t, fb.CreateRoom(ctx, room))
	require.NoError(t, fb.TouchRoom(ctx, "r1", now.Add(time.Minute)))

	got, err := fb.Room(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), got.CreatorID)

	require.NoError(t, fb.SaveMessage(ctx, &domain.Message{ID: "m1", RoomID: "r1"}))
	purged, err := fb.DeleteRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged.Messages)
}

func TestFallbackPassesThroughNotFound(t *testing.T) {
	mem := NewMemory(0)
	fb := NewFallback(mem, NewMemory(0))
	ctx := context.Background()

	// ErrNotFound is an answer, not an outage; it must not be masked by the
	// secondary store.
	_, err := fb.Room(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackPrefersHealthyPrimary(t *testing.T) {
	primary := NewMemory(0)
	shadow := NewMemory(0)
	fb := NewFallback(primary, shadow)
	ctx := context.Background()

	require.NoError(t, fb.SaveMessage(ctx, &domain.Message{ID: "m1", RoomID: "r1", Text: "hi"}))

	direct, err := primary.Messages(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Len(t, direct, 1)

	// Nothing leaks into the shadow store while the primary is healthy.
	mirrored, err := shadow.Messages(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Empty(t, mirrored)
}
