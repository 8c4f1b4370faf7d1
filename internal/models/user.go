package models

// User is a chat platform account. Login is the natural key used across
// sessions, room memberships and messages.
type User struct {
	Login      string `gorm:"primaryKey;size:30" json:"login"`
	Name       string `gorm:"not null" json:"name"`
	Password   string `gorm:"not null" json:"-"` // bcrypt hash
	Avatar     string `gorm:"type:jsonb" json:"avatar"`
	PlatformID int    `gorm:"index" json:"platformId"`
	CanAccess  bool   `gorm:"not null;default:true" json:"-"`
}
