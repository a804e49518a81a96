package domain

import "time"

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ConnID identifies one live transport connection. Empty means offline.
type ConnID string

// Participant is keyed by (RoomID, UserID). At most one live connection per
// key; a reconnect under the same UserID replaces ConnID in place.
type Participant struct {
	RoomID   RoomID    `bson:"roomId" json:"roomId"`
	UserID   UserID    `bson:"userId" json:"userId"`
	Name     string    `bson:"name" json:"name"`
	Status   Status    `bson:"status" json:"status"`
	JoinTime time.Time `bson:"joinTime" json:"joinTime"`
	LastSeen time.Time `bson:"lastSeen" json:"lastSeen"`
	ConnID   ConnID    `bson:"connId,omitempty" json:"-"`
}

// Online derives presence from the connection reference, which is the
// authoritative signal; Status can lag behind a transport drop.
func (p *Participant) Online() bool {
	return p.ConnID != ""
}

// ParticipantUpdate carries the mutable fields of a participant record.
// Nil fields are left untouched.
type ParticipantUpdate struct {
	Status   *Status
	ConnID   *ConnID
	LastSeen *time.Time
}

func OfflineUpdate(now time.Time) ParticipantUpdate {
	st := StatusOffline
	cid := ConnID("")
	return ParticipantUpdate{Status: &st, ConnID: &cid, LastSeen: &now}
}

func SeenUpdate(now time.Time) ParticipantUpdate {
	return ParticipantUpdate{LastSeen: &now}
}
