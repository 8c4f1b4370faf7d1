package models

import "time"

// RoomType classifies a logical room.
type RoomType string

const (
	RoomService RoomType = "SERVICE" // department room, membership by role assignment
	RoomCommon  RoomType = "COMMON"  // platform-wide room such as announcements
	RoomPrivate RoomType = "PRIVATE" // one-to-one room named by its member pair
)

// Room is a logical chat room. Private rooms are named by the sorted
// "creator:guest" login pair, which makes the pair unique by construction.
type Room struct {
	ID            uint     `gorm:"primaryKey" json:"roomId"`
	Name          string   `gorm:"uniqueIndex;not null" json:"roomName"`
	Type          RoomType `gorm:"size:16;index" json:"type"`
	Interplatform bool     `json:"interplatform"`
	Creator       string   `gorm:"size:30" json:"-"` // private rooms only
	Active        bool     `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time
}

// UserRoom grants a user a role inside a room.
type UserRoom struct {
	ID     uint   `gorm:"primaryKey"`
	Login  string `gorm:"index;size:30"`
	RoomID uint   `gorm:"index"`
	Role   string `gorm:"size:4"`
	Active bool   `gorm:"not null;default:true"`
}
