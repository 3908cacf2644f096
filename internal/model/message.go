package model

import "time"

// PageSize is the fixed message page size of the content API.
const PageSize = 20

// Message is immutable after creation. RoomID scopes it to exactly one room.
// Sender is populated by the API on reads and on send confirmations; it is
// nil only for messages that were never expanded.
type Message struct {
	ID     int       `json:"id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
	RoomID int       `json:"chat_room"`
	Sender *User     `json:"sender,omitempty"`
}

func (m *Message) SenderID() int {
	if m.Sender == nil {
		return 0
	}
	return m.Sender.ID
}
