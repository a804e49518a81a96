package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

func (ctl *Controller) handleSend(ctx context.Context, cid domain.ConnID, c *wsConn, data json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.sendEvent(c, evError, errorData{Message: "malformed message"})
		return
	}
	if err := ctl.validate.Struct(&p); err != nil {
		ctl.sendEvent(c, evError, errorData{Message: "malformed message"})
		return
	}

	saved, err := ctl.proto.Send(ctx, cid, p.message())
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		ctl.sendEvent(c, evError, errorData{Message: "malformed message"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("send failed")
		ctl.sendEvent(c, evError, errorData{Message: "failed to send message, please retry"})
		return
	}

	// The sender gets its own message back too; its client de-duplicates
	// the optimistic local echo.
	ctl.broadcastRoom(saved.RoomID, evNewMessage, saved)

	if saved.IsAIQuestion && ctl.opts.Completer != nil {
		// The reply must land even if the asker disconnects mid-answer.
		question := *saved
		go ctl.runAssistant(context.WithoutCancel(ctx), &question)
	}
}

// Typing is fire-and-forget: no persistence, no ack, lost events are fine.
func (ctl *Controller) handleTyping(cid domain.ConnID, c *wsConn, data json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if err := ctl.validate.Struct(&p); err != nil {
		return
	}
	ctl.broadcastOthers(domain.RoomID(p.RoomID), cid, evUserTyping, map[string]any{
		"userId":   p.UserID,
		"username": p.Username,
		"isTyping": p.IsTyping,
	})
}
