package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/storage"
	"github.com/chatclient/internal/storage/memory"
)

var _ storage.StateCache = (*memory.Client)(nil)

func TestSaveLoadRooms(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)

	rooms := []model.Room{{ID: 1, LastMessage: "hey", UnreadCount: 2}}
	require.NoError(t, c.SaveRooms(ctx, 7, rooms))

	got, err := c.LoadRooms(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hey", got[0].LastMessage)

	// The cache hands out copies, not aliases.
	got[0].LastMessage = "mutated"
	again, err := c.LoadRooms(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "hey", again[0].LastMessage)

	// Other users see nothing.
	other, err := c.LoadRooms(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSaveLoadFriends(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)

	friends := []model.User{{ID: 2, Username: "bob", IsOnline: true}}
	require.NoError(t, c.SaveFriends(ctx, 7, friends))

	got, err := c.LoadFriends(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Username)
}

func TestEntriesExpire(t *testing.T) {
	ctx := context.Background()
	c := memory.New(10 * time.Millisecond)

	require.NoError(t, c.SaveRooms(ctx, 7, []model.Room{{ID: 1}}))
	require.NoError(t, c.SaveFriends(ctx, 7, []model.User{{ID: 2}}))
	time.Sleep(30 * time.Millisecond)

	rooms, err := c.LoadRooms(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, rooms)

	friends, err := c.LoadFriends(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, friends)
}
