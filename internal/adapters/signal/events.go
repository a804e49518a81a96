package signal

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
)

// Wire envelope for both directions: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client → server events.
const (
	evJoinRoom    = "joinRoom"
	evSendMessage = "sendMessage"
	evTyping      = "typing"
	evLeaveRoom   = "leaveRoom"
	evEndMeeting  = "endMeeting"
)

// Server → client events.
const (
	evRoomData           = "roomData"
	evNewMessage         = "newMessage"
	evParticipantsUpdate = "participantsUpdate"
	evUserJoined         = "userJoined"
	evUserLeft           = "userLeft"
	evUserTyping         = "userTyping"
	evMeetingEnded       = "meetingEnded"
	evEndMeetingSuccess  = "endMeetingSuccess"
	evError              = "error"
)

type joinPayload struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required,max=36"`
}

type sendPayload struct {
	RoomID       string              `json:"roomId" validate:"required"`
	Type         string              `json:"type"`
	Text         string              `json:"text"`
	Author       string              `json:"author" validate:"required"`
	UserID       string              `json:"userId" validate:"required"`
	Time         string              `json:"time"`
	Timestamp    json.RawMessage     `json:"timestamp"`
	File         *domain.FilePayload `json:"file"`
	IsAIQuestion bool                `json:"isAIQuestion"`
	OriginUserID string              `json:"originUserId"`
	MessageID    string              `json:"id"`
	Loading      bool                `json:"loading"`
}

type typingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type roomUserPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type userLeftData struct {
	UserID domain.UserID `json:"userId"`
}

type meetingEndedData struct {
	Message                 string `json:"message"`
	DeletedMessageCount     int64  `json:"deletedMessageCount"`
	DeletedParticipantCount int64  `json:"deletedParticipantCount"`
}

type errorData struct {
	Message string `json:"message"`
}

// message converts the wire payload into the domain form. A client timestamp
// survives only when it parses as an absolute time (unix millis or RFC3339);
// anything else leaves the field zero for the server to stamp.
func (s *sendPayload) message() *domain.Message {
	msg := &domain.Message{
		ID:           s.MessageID,
		RoomID:       domain.RoomID(s.RoomID),
		Type:         domain.MessageType(s.Type),
		Text:         s.Text,
		Author:       s.Author,
		UserID:       domain.UserID(s.UserID),
		Time:         s.Time,
		File:         s.File,
		IsAIQuestion: s.IsAIQuestion,
		OriginUserID: domain.UserID(s.OriginUserID),
		Loading:      s.Loading,
	}
	msg.Timestamp = parseClientTime(s.Timestamp)
	return msg
}

func parseClientTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	text := strings.TrimSpace(string(raw))
	if ms, err := strconv.ParseInt(text, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if t, err := time.Parse(time.RFC3339, str); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			return t
		}
	}
	return time.Time{}
}

func encodeEvent(event string, data any) (app.Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: raw})
}
