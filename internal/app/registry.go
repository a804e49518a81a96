package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/domain"
)

// Frame is an encoded server-to-client event.
type Frame []byte

// Sender pushes frames to one live connection without blocking.
type Sender interface {
	TrySend(f Frame) error
}

type connEntry struct {
	RoomID domain.RoomID
	UserID domain.UserID
	Name   string
	Sender Sender
	Cancel context.CancelFunc
}

// Registry is the presence tracker: it maps live connection ids to their
// bound (room, user) identity and outbound sender. Persistent participant
// records live in the store; this is transport-side state only.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

func (r *Registry) Bind(cid domain.ConnID, sender Sender, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{Sender: sender, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("bound connection")
}

// BindRoom records which room and user identity a connection acts as.
// A connection is bound to at most one room.
func (r *Registry) BindRoom(cid domain.ConnID, roomID domain.RoomID, userID domain.UserID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	e.RoomID = roomID
	e.UserID = userID
	e.Name = name
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(roomID)).Str("user", string(userID)).Msg("bound room")
	return true
}

// ClearRoom drops the room association but keeps the connection alive.
func (r *Registry) ClearRoom(cid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[cid]; ok {
		e.RoomID = ""
		e.UserID = ""
		e.Name = ""
	}
}

func (r *Registry) Unbind(cid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbound connection")
}

// Identity returns the (room, user, name) a connection is currently bound to.
func (r *Registry) Identity(cid domain.ConnID) (domain.RoomID, domain.UserID, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.RoomID == "" {
		return "", "", "", false
	}
	return e.RoomID, e.UserID, e.Name, true
}

func (r *Registry) SenderOf(cid domain.ConnID) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil, false
	}
	return e.Sender, true
}

type ConnSnap struct {
	ConnID domain.ConnID
	UserID domain.UserID
	Sender Sender
}

// ConnsInRoom snapshots every connection currently bound to a room.
func (r *Registry) ConnsInRoom(roomID domain.RoomID) []ConnSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnSnap, 0, 4)
	for cid, e := range r.conns {
		if e.RoomID == roomID {
			out = append(out, ConnSnap{ConnID: cid, UserID: e.UserID, Sender: e.Sender})
		}
	}
	return out
}

// DetachRoom unbinds every connection in a room and returns the detached
// snapshots. Used after EndMeeting so no further events can target the room.
func (r *Registry) DetachRoom(roomID domain.RoomID) []ConnSnap {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnSnap, 0, 4)
	for cid, e := range r.conns {
		if e.RoomID == roomID {
			out = append(out, ConnSnap{ConnID: cid, UserID: e.UserID, Sender: e.Sender})
			e.RoomID = ""
			e.UserID = ""
			e.Name = ""
		}
	}
	return out
}

// Cancel tears down the connection-scoped context, which closes the pumps.
func (r *Registry) Cancel(cid domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}
