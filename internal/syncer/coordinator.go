// Package syncer glues the event channel to the local stores. The
// coordinator is the only component that subscribes to transport events and
// the only code path through which a remote event mutates local state. It
// also owns the "local apply, then publish" pairs for the client's own
// mutations, so every logical event has exactly one writer on each side.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/store"
	"github.com/chatclient/internal/transport"
)

type Coordinator struct {
	adapter   *transport.Adapter
	directory *store.Directory
	timeline  *store.Timeline
	friends   *store.Friends
	userID    int

	mu      sync.Mutex
	subs    []*transport.Subscription
	started bool
}

func New(adapter *transport.Adapter, directory *store.Directory, timeline *store.Timeline, friends *store.Friends, userID int) *Coordinator {
	return &Coordinator{
		adapter:   adapter,
		directory: directory,
		timeline:  timeline,
		friends:   friends,
		userID:    userID,
	}
}

// Start opens the session: connect, wait for the handshake, announce this
// user online, refresh the friend and room lists, broadcast the presence
// snapshot, then subscribe to the remote event stream. Handler registration
// is paired with deregistration in Stop so remounting a session never
// duplicates delivery.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.adapter.Connect()
	if err := c.adapter.WaitUntilConnected(ctx); err != nil {
		// Leave nothing running so a later Start gets a clean attempt.
		c.adapter.Disconnect()
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	if err := c.announcePresence(ctx, true); err != nil {
		logger.Errorf("syncer: presence announce: %v", err)
	}
	if err := c.directory.Load(ctx); err != nil {
		logger.Errorf("syncer: room load: %v", err)
	}

	c.mu.Lock()
	c.subs = []*transport.Subscription{
		c.adapter.On(transport.EventNewRoom, c.onNewRoom),
		c.adapter.On(transport.EventRoomInvite, c.onRoomInvite),
		c.adapter.On(transport.EventNewMessages, c.onNewMessage),
		c.adapter.On(transport.EventUpdatedFriends, c.onUpdatedFriends),
	}
	c.mu.Unlock()
	return nil
}

// Stop ends the session: announce offline, release every subscription and
// disconnect the channel.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	if err := c.announcePresence(ctx, false); err != nil {
		logger.Errorf("syncer: offline announce: %v", err)
	}
	c.adapter.Disconnect()
}

// announcePresence updates this user's online flag, refreshes the friend
// list and broadcasts the simplified {id, isOnline} snapshot.
func (c *Coordinator) announcePresence(ctx context.Context, online bool) error {
	if err := c.friends.SetOnline(ctx, c.userID, online); err != nil {
		return err
	}
	if _, err := c.friends.Load(ctx); err != nil {
		return err
	}
	return c.adapter.Emit(transport.EventUpdatedFriends, c.friends.Snapshot())
}

// CreateRoom applies the creation locally, then publishes it so other
// clients converge.
func (c *Coordinator) CreateRoom(ctx context.Context, friendID int) (*model.Room, error) {
	room, err := c.directory.Create(ctx, friendID)
	if err != nil {
		return nil, err
	}
	if err := c.adapter.Emit(transport.EventNewRoom, room); err != nil {
		logger.Errorf("syncer: broadcast new-room: %v", err)
	}
	return room, nil
}

// InviteFriend connects a friend to a room and publishes the updated
// snapshot with the add discriminator.
func (c *Coordinator) InviteFriend(ctx context.Context, roomID, friendID int) (*model.Room, error) {
	room, err := c.directory.AddMember(ctx, roomID, friendID)
	if err != nil {
		return nil, err
	}
	if err := c.adapter.Emit(transport.EventRoomInvite, transport.InviteAdd, roomID, room); err != nil {
		logger.Errorf("syncer: broadcast room-invite: %v", err)
	}
	return room, nil
}

// LeaveRoom removes the current user from a room and publishes the updated
// snapshot with the remove discriminator. Remote clients drop the room when
// the snapshot shows it dissolved.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID int) (*model.Room, error) {
	room, err := c.directory.RemoveMember(ctx, roomID, c.userID)
	if err != nil {
		return nil, err
	}
	if err := c.adapter.Emit(transport.EventRoomInvite, transport.InviteRemove, roomID, room); err != nil {
		logger.Errorf("syncer: broadcast room-invite: %v", err)
	}
	return room, nil
}

// SendMessage posts through the timeline, updates the room summary and
// publishes the confirmed message.
func (c *Coordinator) SendMessage(ctx context.Context, roomID int, text string) (*model.Message, error) {
	msg, err := c.timeline.Send(ctx, roomID, c.userID, text)
	if err != nil {
		return nil, err
	}
	c.directory.ApplyMessageSummary(roomID, msg.Text, msg.SentAt, false)
	if err := c.adapter.Emit(transport.EventNewMessages, msg, roomID); err != nil {
		logger.Errorf("syncer: broadcast new-messages: %v", err)
	}
	return msg, nil
}

// OpenRoom opens the timeline on a room and clears its unread counter.
func (c *Coordinator) OpenRoom(ctx context.Context, roomID int) error {
	c.directory.ClearUnread(roomID)
	return c.timeline.Open(ctx, roomID)
}

// CloseRoom discards the timeline when the room view closes.
func (c *Coordinator) CloseRoom() {
	c.timeline.Close()
}

// isSelf reports whether a frame originated from this client's own adapter.
// The relay fans broadcasts out to every client including the sender, so
// without this check the sender would duplicate its own messages and rooms.
func (c *Coordinator) isSelf(origin string) bool {
	return origin != "" && origin == c.adapter.OriginID()
}

func (c *Coordinator) onNewRoom(origin string, args []json.RawMessage) {
	if c.isSelf(origin) || len(args) < 1 {
		return
	}
	var room model.Room
	if err := json.Unmarshal(args[0], &room); err != nil {
		logger.Errorf("syncer: new-room decode: %v", err)
		return
	}
	// The event is broadcast to all clients indiscriminately; membership
	// filtering is this client's job.
	if !room.HasMember(c.userID) {
		return
	}
	c.directory.ApplyRemoteUpdate(store.UpdateCreated, room.ID, room)
}

func (c *Coordinator) onRoomInvite(origin string, args []json.RawMessage) {
	if c.isSelf(origin) || len(args) < 3 {
		return
	}
	var kind string
	var roomID int
	var room model.Room
	if err := json.Unmarshal(args[0], &kind); err != nil {
		logger.Errorf("syncer: room-invite kind decode: %v", err)
		return
	}
	if err := json.Unmarshal(args[1], &roomID); err != nil {
		logger.Errorf("syncer: room-invite id decode: %v", err)
		return
	}
	if err := json.Unmarshal(args[2], &room); err != nil {
		logger.Errorf("syncer: room-invite room decode: %v", err)
		return
	}

	// The payload carries the already-updated snapshot; membership is not
	// recomputed here.
	switch kind {
	case transport.InviteAdd:
		c.directory.ApplyRemoteUpdate(store.UpdateMemberAdded, roomID, room)
	case transport.InviteRemove:
		c.directory.ApplyRemoteUpdate(store.UpdateMemberRemoved, roomID, room)
	default:
		logger.Errorf("syncer: room-invite unknown kind %q", kind)
	}
}

func (c *Coordinator) onNewMessage(origin string, args []json.RawMessage) {
	if c.isSelf(origin) || len(args) < 2 {
		return
	}
	var msg model.Message
	var roomID int
	if err := json.Unmarshal(args[0], &msg); err != nil {
		logger.Errorf("syncer: new-messages decode: %v", err)
		return
	}
	if err := json.Unmarshal(args[1], &roomID); err != nil {
		logger.Errorf("syncer: new-messages room decode: %v", err)
		return
	}

	open := c.timeline.ActiveRoom() == roomID
	if open {
		c.timeline.AppendRemote(roomID, msg)
	}
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	c.directory.ApplyMessageSummary(roomID, msg.Text, sentAt, !open)
}

func (c *Coordinator) onUpdatedFriends(origin string, args []json.RawMessage) {
	if c.isSelf(origin) || len(args) < 1 {
		return
	}
	var snapshot []model.Presence
	if err := json.Unmarshal(args[0], &snapshot); err != nil {
		logger.Errorf("syncer: updated-friends decode: %v", err)
		return
	}
	c.friends.MergePresence(snapshot)
}
