package models

import "time"

// Message state ids, represented by integers in the closed range [1,5].
// Transitions are not strictly ordered: REVERTED unassigns a message, making
// it available again as if freshly SENT.
const (
	MessageSent     = 1
	MessageRead     = 2
	MessageAssigned = 3
	MessageAnswered = 4
	MessageReverted = 5
)

var stateNames = [...]string{"SENT", "READ", "ASSIGNED", "ANSWERED", "REVERTED"}

// StateName returns the symbolic name of a state id, or "" if out of range.
func StateName(stateID int) string {
	if stateID < MessageSent || stateID > MessageReverted {
		return ""
	}
	return stateNames[stateID-1]
}

// Message is an append-only chat message. Rows never mutate except for the
// denormalized LastState/StateDate/StateLogin snapshot, which mirrors the
// newest MessageState record.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"messageId"`
	RoomID     uint      `gorm:"index" json:"roomId"`
	Emitter    string    `gorm:"index;size:30" json:"emitter"`
	Name       string    `json:"name"`
	PlatformID int       `gorm:"index" json:"platformId"`
	Receiver   string    `gorm:"size:30" json:"receiver,omitempty"`
	Body       string    `gorm:"column:message;type:text" json:"message"`
	PreviousID *uint     `json:"previousId,omitempty"`
	// PreviousLogin denormalizes the replied-to author so the lowest rank's
	// history filter can match replies addressed to it without a self-join.
	PreviousLogin string    `gorm:"size:30" json:"previousLOGIN,omitempty"`
	Labels        string    `json:"labels,omitempty"`
	Date          time.Time `gorm:"index" json:"date"`
	LastState     int       `json:"lastState"`
	StateDate     time.Time `json:"stateDate"`
	StateLogin    string    `gorm:"size:30" json:"stateLOGIN"`
}

// MessageState is one immutable record of a message's state history.
type MessageState struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"index"`
	StateID   int    `json:"stateId"`
	State     string `gorm:"size:16"`
	Login     string `gorm:"size:30"`
	CreatedAt time.Time
}
