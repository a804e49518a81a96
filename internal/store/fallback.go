package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/domain"
)

// Fallback serves every operation from the primary store and silently
// downgrades to the in-memory store when the primary fails. Availability wins
// over durability during a storage outage; users never see the error.
type Fallback struct {
	primary Store
	memory  *Memory
}

func NewFallback(primary Store, memory *Memory) *Fallback {
	return &Fallback{primary: primary, memory: memory}
}

// degraded decides whether an error is a storage failure worth falling back
// on. ErrNotFound is a legitimate answer, not an outage.
func degraded(op string, err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	log.Warn().Err(err).Str("module", "store").Str("op", op).Msg("primary store failed, using memory")
	return true
}

func (f *Fallback) SaveMessage(ctx context.Context, msg *domain.Message) error {
	err := f.primary.SaveMessage(ctx, msg)
	if degraded("save_message", err) {
		return f.memory.SaveMessage(ctx, msg)
	}
	return err
}

func (f *Fallback) Messages(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	msgs, err := f.primary.Messages(ctx, roomID, limit)
	if degraded("messages", err) {
		return f.memory.Messages(ctx, roomID, limit)
	}
	return msgs, err
}

func (f *Fallback) UpsertParticipant(ctx context.Context, p *domain.Participant) error {
	err := f.primary.UpsertParticipant(ctx, p)
	if degraded("upsert_participant", err) {
		return f.memory.UpsertParticipant(ctx, p)
	}
	return err
}

func (f *Fallback) UpdateParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID, upd domain.ParticipantUpdate) error {
	err := f.primary.UpdateParticipant(ctx, roomID, userID, upd)
	if degraded("update_participant", err) {
		return f.memory.UpdateParticipant(ctx, roomID, userID, upd)
	}
	return err
}

func (f *Fallback) Participants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	ps, err := f.primary.Participants(ctx, roomID)
	if degraded("participants", err) {
		return f.memory.Participants(ctx, roomID)
	}
	return ps, err
}

func (f *Fallback) FindParticipantByConn(ctx context.Context, connID domain.ConnID) (*domain.Participant, error) {
	p, err := f.primary.FindParticipantByConn(ctx, connID)
	if degraded("find_by_conn", err) {
		return f.memory.FindParticipantByConn(ctx, connID)
	}
	return p, err
}

func (f *Fallback) MarkStaleOffline(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := f.primary.MarkStaleOffline(ctx, olderThan)
	if degraded("mark_stale", err) {
		return f.memory.MarkStaleOffline(ctx, olderThan)
	}
	return n, err
}

func (f *Fallback) Room(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	room, err := f.primary.Room(ctx, roomID)
	if degraded("room", err) {
		return f.memory.Room(ctx, roomID)
	}
	return room, err
}

func (f *Fallback) CreateRoom(ctx context.Context, room *domain.Room) error {
	err := f.primary.CreateRoom(ctx, room)
	if degraded("create_room", err) {
		return f.memory.CreateRoom(ctx, room)
	}
	return err
}

func (f *Fallback) TouchRoom(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	err := f.primary.TouchRoom(ctx, roomID, at)
	if degraded("touch_room", err) {
		return f.memory.TouchRoom(ctx, roomID, at)
	}
	return err
}

func (f *Fallback) DeleteRoom(ctx context.Context, roomID domain.RoomID) (Purged, error) {
	purged, err := f.primary.DeleteRoom(ctx, roomID)
	if degraded("delete_room", err) {
		return f.memory.DeleteRoom(ctx, roomID)
	}
	// Clear any shadow copy written while degraded.
	_, _ = f.memory.DeleteRoom(ctx, roomID)
	return purged, err
}

func (f *Fallback) Connected() bool {
	return f.primary.Connected()
}
