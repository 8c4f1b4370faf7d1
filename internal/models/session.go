package models

import (
	"time"

	"github.com/rdelolmomor/CalioBackend/internal/role"
)

// Session lifecycle states as stored in the session table. A cached session
// only ever holds AUTHENTICATED or ACTIVE; CLOSED and EXPIRED are terminal
// and mean absence from the registry.
const (
	SessionAuthenticated = "AUTHENTICATED"
	SessionActive        = "ACTIVE"
	SessionClosed        = "CLOSED"
	SessionExpired       = "EXPIRED"
)

// SessionRecord is the persistent session row. The registry cache is the
// owner of the live copy; this row is the source of truth on cold lookup.
type SessionRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Login     string    `gorm:"index;size:30"`
	Token     string    `gorm:"index"`
	State     string    `gorm:"size:16"`
	SocketID  string    `gorm:"size:40"`
	ExpireAt  time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomMembership binds a session to a logical room with a concrete role.
// A session's room list holds at most one membership per room id.
type RoomMembership struct {
	RoomID        uint      `json:"roomId"`
	RoomName      string    `json:"roomName"`
	Type          RoomType  `json:"type"`
	Role          role.Role `json:"role"`
	Private       bool      `json:"private"`
	Interplatform bool      `json:"interplatform"`
	Sound         bool      `json:"sound"`
}

// Session is the in-memory representation of one authenticated user's
// presence: the persistent session fields merged with the loaded profile.
type Session struct {
	Login      string           `json:"login"`
	Token      string           `json:"token"`
	ExpireAt   time.Time        `json:"expireAt"`
	State      string           `json:"state"`
	SocketID   string           `json:"socketId,omitempty"`
	Name       string           `json:"name"`
	Avatar     string           `json:"avatar"`
	PlatformID int              `json:"platformId"`
	Rooms      []RoomMembership `json:"rooms"`
}

// Membership returns the session's membership for the given room, or nil.
func (s *Session) Membership(roomID uint) *RoomMembership {
	for i := range s.Rooms {
		if s.Rooms[i].RoomID == roomID {
			return &s.Rooms[i]
		}
	}
	return nil
}
