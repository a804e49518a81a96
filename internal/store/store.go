// Package store abstracts durable persistence of rooms, messages and
// participants. Two implementations satisfy the same contract: a mongo-backed
// one and an in-memory one used when no database is reachable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vibemeet/vibemeet/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Purged counts what an EndMeeting wipe removed.
type Purged struct {
	Messages     int64
	Participants int64
}

type Store interface {
	// SaveMessage appends, or replaces in place when a message with the same
	// ID already exists (loading-placeholder resolution).
	SaveMessage(ctx context.Context, msg *domain.Message) error
	// Messages returns up to limit most recent messages in append order.
	Messages(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error)

	// UpsertParticipant is idempotent, keyed by (roomID, userID).
	UpsertParticipant(ctx context.Context, p *domain.Participant) error
	UpdateParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID, upd domain.ParticipantUpdate) error
	Participants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error)
	// FindParticipantByConn locates a participant by live connection identity;
	// a dropped transport cannot name its own userId.
	FindParticipantByConn(ctx context.Context, connID domain.ConnID) (*domain.Participant, error)
	// MarkStaleOffline flips online participants not seen since olderThan to
	// offline and returns how many were flipped.
	MarkStaleOffline(ctx context.Context, olderThan time.Time) (int64, error)

	Room(ctx context.Context, roomID domain.RoomID) (*domain.Room, error)
	CreateRoom(ctx context.Context, room *domain.Room) error
	TouchRoom(ctx context.Context, roomID domain.RoomID, at time.Time) error
	// DeleteRoom removes the room record and everything under it.
	DeleteRoom(ctx context.Context, roomID domain.RoomID) (Purged, error)

	// Connected reports whether the durable backend is reachable.
	Connected() bool
}
