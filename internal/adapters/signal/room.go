package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

func (ctl *Controller) handleJoin(ctx context.Context, cid domain.ConnID, c *wsConn, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendEvent(c, evError, errorData{Message: "missing required fields"})
		return
	}
	if err := ctl.validate.Struct(&p); err != nil {
		ctl.sendEvent(c, evError, errorData{Message: "missing required fields"})
		return
	}

	res, err := ctl.proto.Join(ctx, cid, domain.RoomID(p.RoomID), domain.UserID(p.UserID), p.Username)
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		ctl.sendEvent(c, evError, errorData{Message: "missing required fields"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("join failed")
		ctl.sendEvent(c, evError, errorData{Message: "failed to join room, please retry"})
		return
	}

	// The previous room, if any, sees a normal leave.
	if left := res.Detached; left != nil {
		ctl.broadcastRoom(left.RoomID, evUserLeft, userLeftData{UserID: left.UserID})
		ctl.broadcastRoom(left.RoomID, evParticipantsUpdate, left.Participants)
	}

	ctl.sendEvent(c, evRoomData, res.Snapshot)
	ctl.broadcastOthers(res.Participant.RoomID, cid, evUserJoined, res.Participant)
	ctl.broadcastRoom(res.Participant.RoomID, evParticipantsUpdate, res.Snapshot.Participants)
}

func (ctl *Controller) handleLeave(ctx context.Context, cid domain.ConnID, c *wsConn, data json.RawMessage) {
	var p roomUserPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad leave payload")
		return
	}
	if err := ctl.validate.Struct(&p); err != nil {
		return
	}

	left, err := ctl.proto.Leave(ctx, cid, domain.RoomID(p.RoomID), domain.UserID(p.UserID))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("leave failed")
		return
	}
	ctl.broadcastRoom(left.RoomID, evUserLeft, userLeftData{UserID: left.UserID})
	ctl.broadcastRoom(left.RoomID, evParticipantsUpdate, left.Participants)
}

// onDisconnect mirrors an explicit leave when the transport drops.
func (ctl *Controller) onDisconnect(ctx context.Context, cid domain.ConnID) {
	left, err := ctl.proto.Disconnect(ctx, cid)
	if err != nil {
		if !errors.Is(err, app.ErrNotFound) {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("disconnect cleanup failed")
		}
		return
	}
	ctl.broadcastRoom(left.RoomID, evUserLeft, userLeftData{UserID: left.UserID})
	ctl.broadcastRoom(left.RoomID, evParticipantsUpdate, left.Participants)
}

func (ctl *Controller) handleEnd(ctx context.Context, cid domain.ConnID, c *wsConn, data json.RawMessage) {
	var p roomUserPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad endMeeting payload")
		ctl.sendEvent(c, evError, errorData{Message: "missing required fields"})
		return
	}
	if err := ctl.validate.Struct(&p); err != nil {
		ctl.sendEvent(c, evError, errorData{Message: "missing required fields"})
		return
	}

	res, err := ctl.proto.EndMeeting(ctx, domain.RoomID(p.RoomID), domain.UserID(p.UserID))
	switch {
	case errors.Is(err, app.ErrForbidden):
		ctl.sendEvent(c, evError, errorData{Message: "only the meeting creator can end the meeting"})
		return
	case errors.Is(err, app.ErrNotFound):
		ctl.sendEvent(c, evError, errorData{Message: "meeting not found"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("end meeting failed")
		ctl.sendEvent(c, evError, errorData{Message: "failed to end meeting"})
		return
	}

	ended := meetingEndedData{
		Message:                 "the meeting was ended by its creator and the room data removed",
		DeletedMessageCount:     res.Purged.Messages,
		DeletedParticipantCount: res.Purged.Participants,
	}
	// Connections were already force-detached; deliver the notice directly
	// to the detached snapshots.
	frame, err := encodeEvent(evMeetingEnded, ended)
	if err == nil {
		for _, snap := range res.Detached {
			_ = snap.Sender.TrySend(frame)
		}
	}
	ctl.sendEvent(c, evEndMeetingSuccess, meetingEndedData{
		Message:                 "meeting ended",
		DeletedMessageCount:     res.Purged.Messages,
		DeletedParticipantCount: res.Purged.Participants,
	})
}
