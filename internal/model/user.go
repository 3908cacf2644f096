package model

import "time"

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	IsOnline     bool      `json:"isOnline"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Presence is the simplified form broadcast over the event channel:
// profile images can be large inline blobs, so only the id and the online
// flag travel on the wire.
type Presence struct {
	ID       int  `json:"id"`
	IsOnline bool `json:"isOnline"`
}

func (u *User) ToPresence() Presence {
	return Presence{ID: u.ID, IsOnline: u.IsOnline}
}
