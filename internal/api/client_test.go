package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatclient/internal/api"
)

type recorded struct {
	method string
	path   string
	query  map[string]string
	auth   string
	body   string
}

// recordingServer captures each request and answers with a fixed payload.
func recordingServer(t *testing.T, status int, payload string) (*api.Client, *[]recorded) {
	t.Helper()
	var reqs []recorded
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		q := make(map[string]string)
		for k, v := range r.URL.Query() {
			q[k] = v[0]
		}
		reqs = append(reqs, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  q,
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		})
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}))
	t.Cleanup(ts.Close)
	return api.NewClient(ts.URL, "secret-token"), &reqs
}

func TestListRooms_RequestShape(t *testing.T) {
	c, reqs := recordingServer(t, http.StatusOK, `{"data":[{"id":3,"lastMessage":"hey","members":[{"id":1},{"id":2}]}]}`)

	rooms, err := c.ListRooms(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 3, rooms[0].ID)
	assert.True(t, rooms[0].HasMember(2))

	r := (*reqs)[0]
	assert.Equal(t, http.MethodGet, r.method)
	assert.Equal(t, "/chat-rooms", r.path)
	assert.Equal(t, "1", r.query["filters[users_permissions_users][id][$eq]"])
	assert.Equal(t, "members", r.query["populate"])
	assert.Equal(t, "100", r.query["pagination[pageSize]"])
	assert.Equal(t, "Bearer secret-token", r.auth)
}

func TestCreateRoom_BodyEnvelope(t *testing.T) {
	c, reqs := recordingServer(t, http.StatusOK, `{"data":{"id":9,"lastMessage":"No messages yet.","members":[{"id":1},{"id":2}]}}`)

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	room, err := c.CreateRoom(context.Background(), "No messages yet.", when, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 9, room.ID)

	r := (*reqs)[0]
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "/chat-rooms", r.path)

	var body struct {
		Data struct {
			LastMessage string    `json:"lastMessage"`
			SentAt      time.Time `json:"lastMessageTime"`
			UnreadCount int       `json:"unreadCount"`
			Members     []int     `json:"members"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.body), &body))
	assert.Equal(t, "No messages yet.", body.Data.LastMessage)
	assert.Equal(t, []int{1, 2}, body.Data.Members)
	assert.Equal(t, 0, body.Data.UnreadCount)
	assert.True(t, when.Equal(body.Data.SentAt))
}

func TestMemberOps_ConnectDisconnect(t *testing.T) {
	c, reqs := recordingServer(t, http.StatusOK, `{"data":{"id":4,"members":[{"id":1},{"id":2},{"id":3}]}}`)

	room, err := c.ConnectMember(context.Background(), 4, 3)
	require.NoError(t, err)
	assert.True(t, room.HasMember(3))

	_, err = c.DisconnectMember(context.Background(), 4, 2)
	require.NoError(t, err)

	require.Len(t, *reqs, 2)
	connect, disconnect := (*reqs)[0], (*reqs)[1]
	assert.Equal(t, http.MethodPut, connect.method)
	assert.Equal(t, "/chat-rooms/4", connect.path)
	assert.JSONEq(t, `{"data":{"members":{"connect":[3]}}}`, connect.body)
	assert.JSONEq(t, `{"data":{"members":{"disconnect":[2]}}}`, disconnect.body)
}

func TestListMessages_Pagination(t *testing.T) {
	c, reqs := recordingServer(t, http.StatusOK, `{"data":[{"id":7,"text":"hi","chat_room":5,"sender":{"id":2,"username":"bob"}}],"meta":{"pagination":{"page":2,"pageSize":20,"pageCount":3,"total":45}}}`)

	msgs, err := c.ListMessages(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, 2, msgs[0].SenderID())

	r := (*reqs)[0]
	assert.Equal(t, "/chat-messages", r.path)
	assert.Equal(t, "5", r.query["filters[chat_room][id][$eq]"])
	assert.Equal(t, "sentAt:desc", r.query["sort"])
	assert.Equal(t, "2", r.query["pagination[page]"])
	assert.Equal(t, "20", r.query["pagination[pageSize]"])
	assert.Equal(t, "sender", r.query["populate"])
}

func TestSendMessage_BareSenderID(t *testing.T) {
	c, reqs := recordingServer(t, http.StatusOK, `{"data":{"id":11,"text":"yo","chat_room":5,"sender":{"id":1,"username":"alice"}}}`)

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := c.SendMessage(context.Background(), 5, 1, "yo", when)
	require.NoError(t, err)
	assert.Equal(t, 11, msg.ID)
	require.NotNil(t, msg.Sender, "response expands the sender profile")
	assert.Equal(t, "alice", msg.Sender.Username)

	r := (*reqs)[0]
	var body struct {
		Data struct {
			Text     string `json:"text"`
			ChatRoom int    `json:"chat_room"`
			Sender   int    `json:"sender"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.body), &body))
	assert.Equal(t, "yo", body.Data.Text)
	assert.Equal(t, 5, body.Data.ChatRoom)
	assert.Equal(t, 1, body.Data.Sender, "sender goes out as a bare id")
}

func TestUsers_BareJSON(t *testing.T) {
	c, reqs := recordingServer(t, http.StatusOK, `[{"id":1,"username":"alice","isOnline":true}]`)

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsOnline)

	require.NoError(t, c.SetUserOnline(context.Background(), 1, false))
	r := (*reqs)[1]
	assert.Equal(t, http.MethodPut, r.method)
	assert.Equal(t, "/users/1", r.path)
	assert.JSONEq(t, `{"isOnline":false}`, r.body, "presence update is flat, no data envelope")
}

func TestDo_ErrorStatus(t *testing.T) {
	c, _ := recordingServer(t, http.StatusForbidden, `{"error":"forbidden"}`)

	_, err := c.ListRooms(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
