package client

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

// Session ties a Reconciler to the durable cache: every accepted change is
// mirrored to disk, and changes written by other local consumers of the same
// room key are adopted when their message count is higher.
type Session struct {
	rec   *Reconciler
	cache *Cache
}

func NewSession(roomID domain.RoomID, self domain.UserID, cache *Cache) *Session {
	s := &Session{
		rec:   NewReconciler(roomID, self, DefaultDupWindow),
		cache: cache,
	}
	if cached, err := cache.Load(roomID); err == nil {
		s.rec.Restore(cached)
	} else if !errors.Is(err, ErrNoCache) {
		log.Warn().Err(err).Str("module", "client").Str("room", string(roomID)).Msg("cache restore failed")
	}
	return s
}

func (s *Session) OnSnapshot(snap app.Snapshot) {
	s.rec.ApplySnapshot(snap)
	s.persist()
}

func (s *Session) OnMessage(msg domain.Message) bool {
	visible := s.rec.ApplyMessage(msg)
	if visible {
		s.persist()
	}
	return visible
}

func (s *Session) OnParticipants(ps []domain.Participant) {
	s.rec.ApplyParticipants(ps)
	s.persist()
}

func (s *Session) State() RoomState { return s.rec.State() }

func (s *Session) persist() {
	if err := s.cache.Save(s.rec.State()); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("cache save failed")
	}
}

// Sync watches the cache for writes from other local processes. Blocks until
// ctx is done.
func (s *Session) Sync(ctx context.Context, onAdopt func(RoomState)) error {
	return s.cache.Watch(ctx, s.rec.State().RoomID, func(state RoomState) {
		if s.rec.AdoptIfNewer(state) {
			log.Info().Str("module", "client").Str("room", string(state.RoomID)).Int("messages", len(state.Messages)).Msg("adopted newer cache state")
			if onAdopt != nil {
				onAdopt(s.rec.State())
			}
		}
	})
}
