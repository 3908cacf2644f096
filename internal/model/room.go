package model

import "time"

// MaxRooms is the per-user cap enforced both by the content API query and by
// the room directory before creating a new room.
const MaxRooms = 100

type Room struct {
	ID              int       `json:"id"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Members         []User    `json:"members"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

func (r *Room) HasMember(userID int) bool {
	for _, m := range r.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

func (r *Room) MemberIDs() []int {
	ids := make([]int, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// Dissolved reports whether the room has fewer than two members left and
// must be removed from the directory.
func (r *Room) Dissolved() bool {
	return len(r.Members) < 2
}

// IsPair reports whether the room's full member set is exactly {a, b}.
func (r *Room) IsPair(a, b int) bool {
	return len(r.Members) == 2 && r.HasMember(a) && r.HasMember(b)
}
