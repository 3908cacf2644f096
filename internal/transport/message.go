package transport

import "encoding/json"

// Event channel event names (the observable contract of the relay server).
const (
	EventNewRoom        = "new-room"
	EventRoomInvite     = "room-invite"
	EventNewMessages    = "new-messages"
	EventUpdatedFriends = "updated-friends"
)

// Invite discriminators carried as the first argument of room-invite.
const (
	InviteAdd    = "add"
	InviteRemove = "remove"
)

// Frame is one event on the wire. Args mirror the variadic emit payload;
// handlers decode the positions they care about. Origin identifies the
// adapter that published the frame: the relay fans every frame out to all
// connected clients, including the sender, so consumers use Origin to drop
// their own echoes.
type Frame struct {
	Origin string            `json:"origin,omitempty"`
	Event  string            `json:"event"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

// Handler receives the raw argument list of one frame. Handlers for the same
// event run in registration order on the adapter's read loop.
type Handler func(origin string, args []json.RawMessage)
