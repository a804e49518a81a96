// Package client is the connection-side half of the room protocol: it merges
// server-pushed state with locally cached state without duplicating or losing
// messages, and mirrors the result to a durable cache other local consumers
// can watch.
package client

import (
	"sync"
	"time"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

const DefaultDupWindow = 30 * time.Second

// RoomState is the client's materialized view of one room.
type RoomState struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Messages     []domain.Message     `json:"messages"`
	Participants []domain.Participant `json:"participants"`
	RoomInfo     *domain.RoomInfo     `json:"roomInfo,omitempty"`
	IsCreator    bool                 `json:"isCreator"`
}

// Reconciler applies snapshots and incremental messages for one room on
// behalf of one local identity.
type Reconciler struct {
	mu        sync.Mutex
	self      domain.UserID
	dupWindow time.Duration
	state     RoomState
}

func NewReconciler(roomID domain.RoomID, self domain.UserID, dupWindow time.Duration) *Reconciler {
	if dupWindow <= 0 {
		dupWindow = DefaultDupWindow
	}
	return &Reconciler{
		self:      self,
		dupWindow: dupWindow,
		state:     RoomState{RoomID: roomID},
	}
}

// Restore seeds local state from the durable cache so the room renders
// before the server snapshot arrives.
func (r *Reconciler) Restore(cached RoomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached.RoomID == r.state.RoomID {
		r.state = cached
	}
}

// ApplySnapshot replaces the message list only when the server history is
// strictly longer than the local one; a snapshot never regresses local state
// that advanced via optimistic sends. The participant list is always taken
// verbatim, the server is authoritative for presence.
//
// Known gap: a divergent server history whose length merely differs (not
// strictly greater) leaves local-only messages in place and never uploads
// them, so messages composed offline can stay invisible to others.
func (r *Reconciler) ApplySnapshot(snap app.Snapshot) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(snap.Messages) > len(r.state.Messages) {
		r.state.Messages = snap.Messages
		replaced = true
	}
	r.state.Participants = snap.Participants
	r.state.RoomInfo = snap.RoomInfo
	r.state.IsCreator = snap.IsCreator
	return replaced
}

// ApplyMessage appends an incremental message unless one of the duplicate
// rules suppresses it. Returns whether the message became visible.
func (r *Reconciler) ApplyMessage(msg domain.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suppress(msg) {
		return false
	}
	r.state.Messages = append(r.state.Messages, msg)
	return true
}

func (r *Reconciler) suppress(msg domain.Message) bool {
	// Own messages were already rendered as an optimistic local echo.
	if msg.UserID == r.self {
		return true
	}
	// An AI reply to this identity's own question was shown immediately.
	if msg.Type == domain.MessageAI && msg.OriginUserID == r.self {
		return true
	}
	for i := len(r.state.Messages) - 1; i >= 0; i-- {
		prev := r.state.Messages[i]
		if !withinWindow(prev.Timestamp, msg.Timestamp, r.dupWindow) {
			break
		}
		// Re-delivered AI content within the recency window.
		if msg.Type == domain.MessageAI && prev.Type == domain.MessageAI && prev.Text == msg.Text {
			return true
		}
		// A file broadcast that round-tripped through its sender.
		if msg.Type == domain.MessageFile && prev.Type == domain.MessageFile &&
			msg.File != nil && prev.File != nil &&
			prev.File.Name == msg.File.Name && prev.UserID == msg.UserID {
			return true
		}
	}
	return false
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// ApplyParticipants takes a pushed participant list verbatim.
func (r *Reconciler) ApplyParticipants(ps []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Participants = ps
}

// AdoptIfNewer merges a cache state written by another local consumer; the
// higher message count wins.
func (r *Reconciler) AdoptIfNewer(other RoomState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if other.RoomID != r.state.RoomID || len(other.Messages) <= len(r.state.Messages) {
		return false
	}
	r.state = other
	return true
}

// State returns a copy safe to hand to renderers or the cache.
func (r *Reconciler) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.state
	cp.Messages = append([]domain.Message(nil), r.state.Messages...)
	cp.Participants = append([]domain.Participant(nil), r.state.Participants...)
	return cp
}
