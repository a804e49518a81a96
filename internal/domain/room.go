// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const (
	MaxRoomIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrRoomIDEmpty     = errors.New("room id empty")
	ErrRoomIDTooLong   = errors.New("room id too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
	ErrUserIDEmpty     = errors.New("user id empty")
)

type (
	RoomID string
	UserID string
)

// Room is created implicitly by the first user to join an unknown id.
// The creator is fixed at that moment and never changes.
type Room struct {
	ID           RoomID    `bson:"roomId" json:"roomId"`
	CreatorID    UserID    `bson:"creatorId" json:"creatorId"`
	CreatorName  string    `bson:"creatorName" json:"creatorName"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	LastActivity time.Time `bson:"lastActivity" json:"lastActivity"`
}

// NewRoom avoids raw literals in adapters and keeps construction obvious.
func NewRoom(id RoomID, creator UserID, creatorName string, now time.Time) (*Room, error) {
	if err := ValidateRoomID(id); err != nil {
		return nil, err
	}
	if creator == "" {
		return nil, ErrUserIDEmpty
	}
	if err := ValidateUsername(creatorName); err != nil {
		return nil, err
	}
	return &Room{
		ID:           id,
		CreatorID:    creator,
		CreatorName:  creatorName,
		CreatedAt:    now,
		LastActivity: now,
	}, nil
}

// RoomInfo is the creator slice of a Room pushed to clients in a join snapshot.
type RoomInfo struct {
	CreatorID   UserID    `json:"creatorId"`
	CreatorName string    `json:"creatorName"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{CreatorID: r.CreatorID, CreatorName: r.CreatorName, CreatedAt: r.CreatedAt}
}

func ValidateRoomID(id RoomID) error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
