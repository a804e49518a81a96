package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/domain"
	"github.com/vibemeet/vibemeet/internal/store"
)

// Protocol is the server-authoritative session state machine. It owns every
// mutation of room, message and participant state; adapters only translate
// transport events into calls here and broadcast the results.
type Protocol struct {
	store    store.Store
	registry *Registry
	history  int

	// Per-room serialization: a join's same-name sweep and its own upsert
	// must not interleave with a concurrent join to the same room.
	lockMu sync.Mutex
	locks  map[domain.RoomID]*sync.Mutex
}

func NewProtocol(st store.Store, reg *Registry, historyLimit int) *Protocol {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Protocol{
		store:    st,
		registry: reg,
		history:  historyLimit,
		locks:    make(map[domain.RoomID]*sync.Mutex),
	}
}

func (p *Protocol) Registry() *Registry { return p.registry }

func (p *Protocol) Store() store.Store { return p.store }

func (p *Protocol) roomLock(id domain.RoomID) *sync.Mutex {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()
	mu, ok := p.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[id] = mu
	}
	return mu
}

// Snapshot is the full room state sent to a connection right after joining.
type Snapshot struct {
	Messages     []domain.Message     `json:"messages"`
	Participants []domain.Participant `json:"participants"`
	RoomInfo     *domain.RoomInfo     `json:"roomInfo"`
	IsCreator    bool                 `json:"isCreator"`
}

// LeaveResult carries what the adapter needs to broadcast after a
// leave/disconnect/detach.
type LeaveResult struct {
	RoomID       domain.RoomID
	UserID       domain.UserID
	Participants []domain.Participant
}

type JoinResult struct {
	// Detached is set when the connection was bound to another room before
	// this join and had to be removed from it first.
	Detached    *LeaveResult
	Participant domain.Participant
	Snapshot    Snapshot
}

// Join runs the full join sequence. Room creation and the participant upsert
// are individually idempotent, so a retried join converges on the same state.
func (p *Protocol) Join(ctx context.Context, connID domain.ConnID, roomID domain.RoomID, userID domain.UserID, name string) (*JoinResult, error) {
	if roomID == "" || userID == "" || name == "" {
		return nil, ErrInvalidRequest
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if err := domain.ValidateUsername(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	res := &JoinResult{}

	// One room per connection: detach from the previous one first.
	if prevRoom, prevUser, _, ok := p.registry.Identity(connID); ok && prevRoom != roomID {
		if left, err := p.Leave(ctx, connID, prevRoom, prevUser); err == nil {
			res.Detached = left
		}
	}

	mu := p.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()

	// A user rejoining under a regenerated id must not leave its old identity
	// looking online: same display name, different user id goes offline.
	existing, err := p.store.Participants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: list participants: %s", ErrJoinFailed, err)
	}
	for _, other := range existing {
		if other.Name == name && other.UserID != userID {
			if err := p.store.UpdateParticipant(ctx, roomID, other.UserID, domain.OfflineUpdate(now)); err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: demote duplicate name: %s", ErrJoinFailed, err)
			}
		}
	}

	room, err := p.store.Room(ctx, roomID)
	isCreator := false
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First joiner owns the room.
		isCreator = true
		room, err = domain.NewRoom(roomID, userID, name, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
		}
		if err := p.store.CreateRoom(ctx, room); err != nil {
			return nil, fmt.Errorf("%w: create room: %s", ErrJoinFailed, err)
		}
		log.Info().Str("module", "app.protocol").Str("room", string(roomID)).Str("user", string(userID)).Msg("room created")
	case err != nil:
		return nil, fmt.Errorf("%w: load room: %s", ErrJoinFailed, err)
	default:
		isCreator = room.CreatorID == userID
		if err := p.store.TouchRoom(ctx, roomID, now); err != nil {
			log.Warn().Err(err).Str("module", "app.protocol").Str("room", string(roomID)).Msg("touch room failed")
		}
	}

	participant := domain.Participant{
		RoomID:   roomID,
		UserID:   userID,
		Name:     name,
		Status:   domain.StatusOnline,
		JoinTime: now,
		LastSeen: now,
		ConnID:   connID,
	}
	if err := p.store.UpsertParticipant(ctx, &participant); err != nil {
		return nil, fmt.Errorf("%w: upsert participant: %s", ErrJoinFailed, err)
	}

	messages, err := p.store.Messages(ctx, roomID, p.history)
	if err != nil {
		return nil, fmt.Errorf("%w: load messages: %s", ErrJoinFailed, err)
	}
	participants, err := p.store.Participants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: list participants: %s", ErrJoinFailed, err)
	}

	p.registry.BindRoom(connID, roomID, userID, name)

	info := room.Info()
	res.Participant = participant
	res.Snapshot = Snapshot{
		Messages:     messages,
		Participants: derivePresence(participants),
		RoomInfo:     &info,
		IsCreator:    isCreator,
	}
	log.Info().Str("module", "app.protocol").Str("room", string(roomID)).Str("user", string(userID)).Bool("creator", isCreator).Msg("joined")
	return res, nil
}

// derivePresence makes status follow the connection reference, which is what
// clients should trust.
func derivePresence(ps []domain.Participant) []domain.Participant {
	out := make([]domain.Participant, len(ps))
	for i, p := range ps {
		if p.Online() {
			p.Status = domain.StatusOnline
		} else {
			p.Status = domain.StatusOffline
		}
		out[i] = p
	}
	return out
}

// Send persists an inbound message and returns the stored form for
// broadcast. Ordering beyond server receipt order is not promised.
func (p *Protocol) Send(ctx context.Context, connID domain.ConnID, msg *domain.Message) (*domain.Message, error) {
	if msg.RoomID == "" || msg.Author == "" || msg.UserID == "" {
		return nil, ErrInvalidRequest
	}
	if _, _, _, ok := p.registry.Identity(connID); !ok {
		return nil, ErrInvalidRequest
	}
	now := time.Now()
	msg.Normalize(now)
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	if err := p.store.UpdateParticipant(ctx, msg.RoomID, msg.UserID, domain.SeenUpdate(now)); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("module", "app.protocol").Str("room", string(msg.RoomID)).Msg("update lastSeen failed")
	}
	return msg, nil
}

// PostServerMessage persists a message the server itself originates, such as
// assistant replies. Saving reuses the replace-in-place rule: posting the same
// id again overwrites the stored copy, which is how a loading placeholder
// becomes its final content.
func (p *Protocol) PostServerMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg.RoomID == "" || msg.Author == "" || msg.UserID == "" {
		return nil, ErrInvalidRequest
	}
	msg.Normalize(time.Now())
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// Leave marks the participant offline and unbinds the connection from the
// room. Explicit leave and transport drop are equivalent for cleanup.
func (p *Protocol) Leave(ctx context.Context, connID domain.ConnID, roomID domain.RoomID, userID domain.UserID) (*LeaveResult, error) {
	if roomID == "" || userID == "" {
		return nil, ErrInvalidRequest
	}
	now := time.Now()
	if err := p.store.UpdateParticipant(ctx, roomID, userID, domain.OfflineUpdate(now)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("mark offline: %w", err)
	}
	p.registry.ClearRoom(connID)

	participants, err := p.store.Participants(ctx, roomID)
	if err != nil {
		participants = nil
	}
	log.Info().Str("module", "app.protocol").Str("room", string(roomID)).Str("user", string(userID)).Msg("left")
	return &LeaveResult{RoomID: roomID, UserID: userID, Participants: derivePresence(participants)}, nil
}

// Disconnect handles a transport drop. The participant is located by
// connection identity; a dropped client cannot declare itself.
func (p *Protocol) Disconnect(ctx context.Context, connID domain.ConnID) (*LeaveResult, error) {
	if roomID, userID, _, ok := p.registry.Identity(connID); ok {
		return p.Leave(ctx, connID, roomID, userID)
	}
	part, err := p.store.FindParticipantByConn(ctx, connID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p.Leave(ctx, connID, part.RoomID, part.UserID)
}

type EndResult struct {
	Purged store.Purged
	// Detached lists the connections that were bound to the room and have
	// been force-detached.
	Detached []ConnSnap
}

// EndMeeting wipes the room and everything under it. Creator-only and
// irreversible; a second invocation finds no room and reports ErrNotFound.
func (p *Protocol) EndMeeting(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*EndResult, error) {
	if roomID == "" || userID == "" {
		return nil, ErrInvalidRequest
	}
	mu := p.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, err := p.store.Room(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room.CreatorID != userID {
		return nil, ErrForbidden
	}

	purged, err := p.store.DeleteRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("delete room: %w", err)
	}
	detached := p.registry.DetachRoom(roomID)

	// The room is gone; its lock entry must not outlive it.
	p.lockMu.Lock()
	delete(p.locks, roomID)
	p.lockMu.Unlock()

	log.Info().Str("module", "app.protocol").Str("room", string(roomID)).
		Int64("messages", purged.Messages).Int64("participants", purged.Participants).
		Msg("meeting ended")
	return &EndResult{Purged: purged, Detached: detached}, nil
}

// RunSweeper periodically flips participants that stopped heartbeating to
// offline. Blocks until ctx is done.
func (p *Protocol) RunSweeper(ctx context.Context, every, staleAfter time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.store.MarkStaleOffline(ctx, now.Add(-staleAfter))
			if err != nil {
				log.Warn().Err(err).Str("module", "app.protocol").Msg("stale sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Str("module", "app.protocol").Int64("flipped", n).Msg("stale participants marked offline")
			}
		}
	}
}
