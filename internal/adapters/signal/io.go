package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, cid domain.ConnID, c *wsConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump ping error")
				return
			}
		}
	}
}

// teardown releases everything a connection holds. The connection context is
// already canceled on the rate-limit and shutdown paths, and cleanup must
// still reach the primary store, so cancellation is stripped.
func (ctl *Controller) teardown(ctx context.Context, cid domain.ConnID, c *wsConn) {
	log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
	ctl.onDisconnect(context.WithoutCancel(ctx), cid)
	ctl.limiter.Forget(cid)
	ctl.proto.Registry().Unbind(cid)
	c.Close()
}

func (ctl *Controller) readPump(ctx context.Context, cid domain.ConnID, c *wsConn) {
	defer ctl.teardown(ctx, cid, c)

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	readWait := ctl.opts.PingPeriod + writeWait + time.Second
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
			if err := ctl.admit(cid, c); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("closing connection")
				return
			}
			ctl.dispatch(ctx, cid, c, data)
		}
	}
}

// admit enforces the per-connection event quota. Exceeding it tells the
// client why, cancels the connection and reports ErrRateLimited.
func (ctl *Controller) admit(cid domain.ConnID, c *wsConn) error {
	if ctl.limiter.Allow(cid) {
		return nil
	}
	ctl.sendEvent(c, evError, errorData{Message: "rate limit exceeded, connection closed"})
	ctl.proto.Registry().Cancel(cid)
	return app.ErrRateLimited
}

func (ctl *Controller) dispatch(ctx context.Context, cid domain.ConnID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendEvent(c, evError, errorData{Message: "malformed event"})
		return
	}

	switch env.Event {
	case evJoinRoom:
		ctl.handleJoin(ctx, cid, c, env.Data)
	case evSendMessage:
		ctl.handleSend(ctx, cid, c, env.Data)
	case evTyping:
		ctl.handleTyping(cid, c, env.Data)
	case evLeaveRoom:
		ctl.handleLeave(ctx, cid, c, env.Data)
	case evEndMeeting:
		ctl.handleEnd(ctx, cid, c, env.Data)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
	}
}

func (ctl *Controller) sendEvent(s app.Sender, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("encode event")
		return
	}
	_ = s.TrySend(frame)
}

// broadcastRoom fans an event out to every connection bound to the room.
func (ctl *Controller) broadcastRoom(roomID domain.RoomID, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("encode event")
		return
	}
	for _, snap := range ctl.proto.Registry().ConnsInRoom(roomID) {
		if err := snap.Sender.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(snap.ConnID)).Msg("broadcast drop")
		}
	}
}

// broadcastOthers is broadcastRoom minus the originating connection.
func (ctl *Controller) broadcastOthers(roomID domain.RoomID, except domain.ConnID, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("encode event")
		return
	}
	for _, snap := range ctl.proto.Registry().ConnsInRoom(roomID) {
		if snap.ConnID == except {
			continue
		}
		if err := snap.Sender.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(snap.ConnID)).Msg("broadcast drop")
		}
	}
}
