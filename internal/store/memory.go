package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vibemeet/vibemeet/internal/domain"
)

const (
	memMessageCap  = 1000
	memMessageKeep = 800
)

type memRoom struct {
	info         *domain.Room
	messages     []domain.Message
	participants map[domain.UserID]*domain.Participant
}

// Memory keeps everything in process. It backs tests and the degraded mode
// when mongo is unreachable.
type Memory struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]*memRoom
	retention time.Duration
}

func NewMemory(retention time.Duration) *Memory {
	return &Memory{rooms: make(map[domain.RoomID]*memRoom), retention: retention}
}

func (m *Memory) room(id domain.RoomID) *memRoom {
	r, ok := m.rooms[id]
	if !ok {
		r = &memRoom{participants: make(map[domain.UserID]*domain.Participant)}
		m.rooms[id] = r
	}
	return r
}

func (m *Memory) SaveMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(msg.RoomID)
	for i := range r.messages {
		if r.messages[i].ID == msg.ID {
			r.messages[i] = *msg
			return nil
		}
	}
	r.messages = append(r.messages, *msg)
	// Cap per-room history so a busy room cannot grow without bound.
	if len(r.messages) > memMessageCap {
		r.messages = append([]domain.Message(nil), r.messages[len(r.messages)-memMessageKeep:]...)
	}
	return nil
}

func (m *Memory) Messages(_ context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	msgs := r.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) UpsertParticipant(_ context.Context, p *domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.room(p.RoomID).participants[p.UserID] = &cp
	return nil
}

func (m *Memory) UpdateParticipant(_ context.Context, roomID domain.RoomID, userID domain.UserID, upd domain.ParticipantUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	p, ok := r.participants[userID]
	if !ok {
		return ErrNotFound
	}
	applyUpdate(p, upd)
	return nil
}

func applyUpdate(p *domain.Participant, upd domain.ParticipantUpdate) {
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.ConnID != nil {
		p.ConnID = *upd.ConnID
	}
	if upd.LastSeen != nil {
		p.LastSeen = *upd.LastSeen
	}
}

func (m *Memory) Participants(_ context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	// Stable order: earliest joiner first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].JoinTime.Before(out[j].JoinTime)
	})
	return out, nil
}

func (m *Memory) FindParticipantByConn(_ context.Context, connID domain.ConnID) (*domain.Participant, error) {
	if connID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		for _, p := range r.participants {
			if p.ConnID == connID {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) MarkStaleOffline(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rooms {
		for _, p := range r.participants {
			if p.Status == domain.StatusOnline && p.LastSeen.Before(olderThan) {
				p.Status = domain.StatusOffline
				p.ConnID = ""
				n++
			}
		}
	}
	return n, nil
}

func (m *Memory) Room(_ context.Context, roomID domain.RoomID) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok || r.info == nil {
		return nil, ErrNotFound
	}
	cp := *r.info
	return &cp, nil
}

func (m *Memory) CreateRoom(_ context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(room.ID)
	if r.info == nil {
		cp := *room
		r.info = &cp
	}
	return nil
}

func (m *Memory) TouchRoom(_ context.Context, roomID domain.RoomID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok && r.info != nil {
		r.info.LastActivity = at
	}
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, roomID domain.RoomID) (Purged, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Purged{}, nil
	}
	purged := Purged{
		Messages:     int64(len(r.messages)),
		Participants: int64(len(r.participants)),
	}
	delete(m.rooms, roomID)
	return purged, nil
}

// Connected reports the durable backend; memory alone has none.
func (m *Memory) Connected() bool { return false }

// PurgeExpired drops messages older than the retention horizon. Mongo does
// this with a TTL index; here a janitor has to call it.
func (m *Memory) PurgeExpired(now time.Time) int {
	if m.retention <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	horizon := now.Add(-m.retention)
	var dropped int
	for _, r := range m.rooms {
		kept := r.messages[:0]
		for _, msg := range r.messages {
			if msg.Timestamp.After(horizon) {
				kept = append(kept, msg)
			} else {
				dropped++
			}
		}
		r.messages = kept
	}
	return dropped
}
