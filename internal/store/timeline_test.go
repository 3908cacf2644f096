package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/store"
	"github.com/chatclient/internal/stub"
)

func seedHistory(s *stub.Server, roomID, senderID, n int, base time.Time) {
	for i := 0; i < n; i++ {
		s.SeedMessage(roomID, senderID, fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
	}
}

func TestTimeline_OpenAndLoadOlder(t *testing.T) {
	ctx := context.Background()
	s, client := newTestAPI(t)
	seedUsers(s, 1, 2)
	roomID := s.SeedRoom("", 1, 2)
	// 32 messages: open yields the newest 20, the older page holds 12.
	seedHistory(s, roomID, 2, 32, time.Now().UTC().Add(-time.Hour))

	tl := store.NewTimeline(client)
	require.NoError(t, tl.Open(ctx, roomID))

	require.Len(t, tl.Messages(), model.PageSize)
	assert.Equal(t, 1, tl.Page())
	assert.True(t, tl.HasMore())
	assertAscending(t, tl.Messages())
	firstPage := tl.Messages()

	require.NoError(t, tl.LoadOlder(ctx))
	msgs := tl.Messages()
	require.Len(t, msgs, 32)
	assert.Equal(t, 2, tl.Page())
	assert.False(t, tl.HasMore())
	assertAscending(t, msgs)

	// Previously loaded messages kept their relative order at the back.
	assert.Equal(t, firstPage, msgs[12:], "prepend only, no reorder")

	// Exhausted history rejects further loads.
	require.ErrorIs(t, tl.LoadOlder(ctx), store.ErrNoHistory)
}

func assertAscending(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].SentAt.Before(msgs[i-1].SentAt),
			"timestamps must be non-decreasing at index %d", i)
	}
}

func TestTimeline_SendWhitespaceRejectedWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	s, client := newTestAPI(t)
	seedUsers(s, 1, 2)
	roomID := s.SeedRoom("", 1, 2)

	tl := store.NewTimeline(client)
	require.NoError(t, tl.Open(ctx, roomID))

	before := s.Requests()
	msg, err := tl.Send(ctx, roomID, 3, "  ")
	require.ErrorIs(t, err, store.ErrEmptyMessage)
	assert.Nil(t, msg)
	assert.Equal(t, before, s.Requests(), "whitespace-only send must not reach the server")
}

func TestTimeline_SendAppendsConfirmedMessage(t *testing.T) {
	ctx := context.Background()
	s, client := newTestAPI(t)
	seedUsers(s, 1, 2)
	roomID := s.SeedRoom("", 1, 2)

	tl := store.NewTimeline(client)
	require.NoError(t, tl.Open(ctx, roomID))

	msg, err := tl.Send(ctx, roomID, 1, "  hello there ")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.NotZero(t, msg.ID, "server-assigned id")
	assert.Equal(t, "hello there", msg.Text, "text trimmed before posting")
	require.NotNil(t, msg.Sender, "sender expanded by the server")
	assert.Equal(t, "alice", msg.Sender.Username)

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[len(msgs)-1].ID, "appended at the live end")
}

func TestTimeline_AppendRemote(t *testing.T) {
	ctx := context.Background()
	s, client := newTestAPI(t)
	seedUsers(s, 1, 2)
	roomID := s.SeedRoom("", 1, 2)

	tl := store.NewTimeline(client)
	require.NoError(t, tl.Open(ctx, roomID))

	tl.AppendRemote(roomID, model.Message{ID: 900, Text: "live", RoomID: roomID})
	require.Len(t, tl.Messages(), 1)

	tl.AppendRemote(roomID+1, model.Message{ID: 901, Text: "other room"})
	assert.Len(t, tl.Messages(), 1, "messages for other rooms are not appended")

	tl.Close()
	assert.Zero(t, tl.ActiveRoom())
	assert.Empty(t, tl.Messages())
}

// TestTimeline_OpenRace covers the stale-response hazard: a slow page-1
// response for the first room must not clobber the state of a room opened
// right after it.
func TestTimeline_OpenRace(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	var once sync.Once
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("filters[chat_room][id][$eq]")
		if roomID == "1" {
			<-release // hold room 1's page until room 2 has landed
		}
		msg := model.Message{ID: 100, Text: "room-" + roomID, SentAt: time.Now().UTC()}
		raw, _ := json.Marshal(map[string]any{"data": []model.Message{msg}})
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()
	defer once.Do(func() { close(release) })

	tl := store.NewTimeline(api.NewClient(ts.URL, ""))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tl.Open(ctx, 1) // will stall server-side
	}()

	// Give the first Open time to issue its request, then switch rooms.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tl.Open(ctx, 2))

	once.Do(func() { close(release) })
	wg.Wait()

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "room-2", msgs[0].Text, "stale room 1 response discarded")
	assert.Equal(t, 2, tl.ActiveRoom())
}
