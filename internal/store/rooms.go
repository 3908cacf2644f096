// Package store holds the client's local state: the room directory, the
// message timeline of the open room, and the friend list. The stores are the
// only writers of their own state; remote events reach them exclusively
// through the sync coordinator.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/storage"
)

// DefaultPreview is the last-message placeholder a freshly created room
// carries until the first message arrives.
const DefaultPreview = "No messages yet."

// UpdateKind discriminates remote room updates.
type UpdateKind string

const (
	UpdateCreated       UpdateKind = "created"
	UpdateMemberAdded   UpdateKind = "memberAdded"
	UpdateMemberRemoved UpdateKind = "memberRemoved"
)

// Directory is the local mirror of the rooms the current user participates
// in. Server-communicating operations keep the previous set intact on
// failure and record a recoverable error string.
type Directory struct {
	api    *api.Client
	cache  storage.StateCache
	userID int

	mu      sync.RWMutex
	rooms   []model.Room
	lastErr string
}

// NewDirectory creates a directory for one user. cache may be nil.
func NewDirectory(apiClient *api.Client, cache storage.StateCache, userID int) *Directory {
	return &Directory{api: apiClient, cache: cache, userID: userID}
}

// List returns the current room set. No ordering guarantee; callers sort by
// last-message time if they need to.
func (d *Directory) List() []model.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}

// LastError returns the most recent recoverable error notice, empty if the
// last operation succeeded.
func (d *Directory) LastError() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

func (d *Directory) setErr(msg string) {
	d.mu.Lock()
	d.lastErr = msg
	d.mu.Unlock()
}

// Hydrate seeds the directory from the state cache so the UI has something
// to render before the authoritative load completes. No-op without a cache
// or when rooms are already present.
func (d *Directory) Hydrate(ctx context.Context) {
	if d.cache == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rooms) > 0 {
		return
	}
	rooms, err := d.cache.LoadRooms(ctx, d.userID)
	if err != nil {
		logger.Errorf("directory hydrate: %v", err)
		return
	}
	d.rooms = rooms
}

// Load replaces the room set with the server's authoritative list for the
// directory's user, capped at model.MaxRooms. On failure the previous set is
// left intact.
func (d *Directory) Load(ctx context.Context) error {
	defer logger.DeferLogDuration("Directory.Load", time.Now())()
	rooms, err := d.api.ListRooms(ctx, d.userID)
	if err != nil {
		d.setErr("failed to load rooms")
		return err
	}
	if len(rooms) > model.MaxRooms {
		rooms = rooms[:model.MaxRooms]
	}
	d.mu.Lock()
	d.rooms = rooms
	d.lastErr = ""
	d.mu.Unlock()
	d.persist(ctx)
	return nil
}

// Create creates a two-member room with the directory's user and friendID.
// Validation errors (self chat, limit, duplicate pair) are rejected before
// any network call. On success the new room is appended locally and
// returned; broadcasting the creation is the caller's job.
func (d *Directory) Create(ctx context.Context, friendID int) (*model.Room, error) {
	if friendID == d.userID {
		return nil, ErrSelfChat
	}
	d.mu.RLock()
	count := len(d.rooms)
	var exists bool
	for _, r := range d.rooms {
		if r.IsPair(d.userID, friendID) {
			exists = true
			break
		}
	}
	d.mu.RUnlock()
	if count >= model.MaxRooms {
		return nil, ErrRoomLimit
	}
	if exists {
		return nil, ErrRoomExists
	}

	room, err := d.api.CreateRoom(ctx, DefaultPreview, time.Now().UTC(), []int{d.userID, friendID})
	if err != nil {
		d.setErr("failed to create room")
		return nil, err
	}
	d.mu.Lock()
	d.rooms = append(d.rooms, *room)
	d.lastErr = ""
	d.mu.Unlock()
	d.persist(ctx)
	return room, nil
}

// AddMember connects a friend to a room, re-fetches the authoritative room
// list to avoid drift, and returns the updated room.
func (d *Directory) AddMember(ctx context.Context, roomID, friendID int) (*model.Room, error) {
	room, err := d.api.ConnectMember(ctx, roomID, friendID)
	if err != nil {
		d.setErr("failed to invite friend")
		return nil, err
	}
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	return room, nil
}

// RemoveMember disconnects a friend from a room and returns the updated
// room. When membership drops to one, the room is deleted server-side and
// removed locally: a room with fewer than two members is dissolved.
func (d *Directory) RemoveMember(ctx context.Context, roomID, friendID int) (*model.Room, error) {
	room, err := d.api.DisconnectMember(ctx, roomID, friendID)
	if err != nil {
		d.setErr("failed to remove member")
		return nil, err
	}
	if room.Dissolved() {
		if err := d.api.DeleteRoom(ctx, roomID); err != nil {
			d.setErr("failed to delete room")
			return nil, err
		}
		d.mu.Lock()
		d.removeLocked(roomID)
		d.lastErr = ""
		d.mu.Unlock()
		d.persist(ctx)
		return room, nil
	}
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	return room, nil
}

// ApplyRemoteUpdate is the only entry point remote room events use.
//
// created inserts the room if absent and the current user is a member.
// memberAdded and memberRemoved replace the matching room with the pushed
// snapshot, trusting the payload; a dissolved snapshot removes the room
// instead. A memberAdded for a room not yet present (this user just got
// invited) inserts it.
func (d *Directory) ApplyRemoteUpdate(kind UpdateKind, roomID int, room model.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch kind {
	case UpdateCreated:
		if !room.HasMember(d.userID) {
			return
		}
		for _, r := range d.rooms {
			if r.ID == room.ID {
				return
			}
		}
		d.rooms = append(d.rooms, room)

	case UpdateMemberAdded, UpdateMemberRemoved:
		if room.Dissolved() {
			d.removeLocked(roomID)
			return
		}
		for i, r := range d.rooms {
			if r.ID == roomID {
				d.rooms[i] = room
				return
			}
		}
		if kind == UpdateMemberAdded && room.HasMember(d.userID) {
			d.rooms = append(d.rooms, room)
		}
	}
}

// ApplyMessageSummary updates a room's last-message preview fields from
// live message traffic and, for rooms that are not currently open,
// increments the unread counter.
func (d *Directory) ApplyMessageSummary(roomID int, preview string, sentAt time.Time, incrementUnread bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rooms {
		if d.rooms[i].ID != roomID {
			continue
		}
		d.rooms[i].LastMessage = preview
		d.rooms[i].LastMessageTime = sentAt
		if incrementUnread {
			d.rooms[i].UnreadCount++
		}
		return
	}
}

// ClearUnread resets a room's unread counter, called when the room is opened.
func (d *Directory) ClearUnread(roomID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			d.rooms[i].UnreadCount = 0
			return
		}
	}
}

func (d *Directory) removeLocked(roomID int) {
	for i, r := range d.rooms {
		if r.ID == roomID {
			d.rooms = append(d.rooms[:i:i], d.rooms[i+1:]...)
			return
		}
	}
}

func (d *Directory) persist(ctx context.Context) {
	if d.cache == nil {
		return
	}
	d.mu.RLock()
	rooms := make([]model.Room, len(d.rooms))
	copy(rooms, d.rooms)
	d.mu.RUnlock()
	if err := d.cache.SaveRooms(ctx, d.userID, rooms); err != nil {
		logger.Errorf("directory persist: %v", err)
	}
}
