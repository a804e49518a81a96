package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageAI     MessageType = "ai"
	MessageFile   MessageType = "file"
	MessageOCR    MessageType = "ocr"
	MessageSystem MessageType = "system"
)

// FilePayload describes an attached file; the blob itself lives behind
// Locator, the core never touches file contents.
type FilePayload struct {
	Name     string `bson:"name" json:"name"`
	Size     string `bson:"size" json:"size"`
	MimeType string `bson:"type" json:"type"`
	Locator  string `bson:"url" json:"url"`
}

// Message is immutable once broadcast, except that a loading placeholder may
// be replaced in place by its final content (same ID, Loading cleared).
type Message struct {
	ID        string       `bson:"messageId" json:"id"`
	RoomID    RoomID       `bson:"roomId" json:"roomId"`
	Type      MessageType  `bson:"type" json:"type"`
	Text      string       `bson:"text" json:"text"`
	Author    string       `bson:"author" json:"author"`
	UserID    UserID       `bson:"userId" json:"userId"`
	Time      string       `bson:"time" json:"time"`
	Timestamp time.Time    `bson:"timestamp" json:"timestamp"`
	File      *FilePayload `bson:"file,omitempty" json:"file,omitempty"`
	// IsAIQuestion marks a user message addressed to the assistant.
	IsAIQuestion bool `bson:"isAIQuestion" json:"isAIQuestion"`
	// OriginUserID marks an AI reply as triggered by a specific user so that
	// user's client can suppress the duplicate of its local echo.
	OriginUserID UserID `bson:"originUserId,omitempty" json:"originUserId,omitempty"`
	Loading      bool   `bson:"loading,omitempty" json:"loading,omitempty"`
}

// Normalize fills server-side defaults: id, type, clock fields. The supplied
// timestamp is kept only when it is a real absolute time.
func (m *Message) Normalize(now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = MessageUser
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if m.Time == "" {
		m.Time = m.Timestamp.Format("15:04")
	}
}
