// Package api is the HTTP client for the content API. All list endpoints use
// the content API's filter/populate/pagination query conventions and wrap
// results in a {data, meta} envelope; /users endpoints return bare JSON.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chatclient/internal/model"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL. token empty means
// requests go out unauthenticated (the stub server accepts both).
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// envelope is the {data, meta} wrapper of the content API. Only data is
// decoded; pagination state is derived from page sizes, so the meta block is
// left to the JSON decoder to skip.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api marshal: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api %s %s decode: %w", method, path, err)
	}
	return nil
}

// ListRooms returns the rooms that contain userID, capped at model.MaxRooms.
func (c *Client) ListRooms(ctx context.Context, userID int) ([]model.Room, error) {
	q := url.Values{}
	q.Set("filters[users_permissions_users][id][$eq]", strconv.Itoa(userID))
	q.Set("populate", "members")
	q.Set("pagination[pageSize]", strconv.Itoa(model.MaxRooms))

	var env envelope
	if err := c.do(ctx, http.MethodGet, "/chat-rooms", q, nil, &env); err != nil {
		return nil, err
	}
	var rooms []model.Room
	if err := json.Unmarshal(env.Data, &rooms); err != nil {
		return nil, fmt.Errorf("api rooms decode: %w", err)
	}
	return rooms, nil
}

type createRoomRequest struct {
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Members         []int     `json:"members"`
}

// CreateRoom creates a room with exactly the given members and returns the
// populated room.
func (c *Client) CreateRoom(ctx context.Context, lastMessage string, lastMessageTime time.Time, members []int) (*model.Room, error) {
	q := url.Values{}
	q.Set("populate", "members")

	body := map[string]createRoomRequest{"data": {
		LastMessage:     lastMessage,
		LastMessageTime: lastMessageTime,
		UnreadCount:     0,
		Members:         members,
	}}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/chat-rooms", q, body, &env); err != nil {
		return nil, err
	}
	var room model.Room
	if err := json.Unmarshal(env.Data, &room); err != nil {
		return nil, fmt.Errorf("api room decode: %w", err)
	}
	return &room, nil
}

type memberOp struct {
	Connect    []int `json:"connect,omitempty"`
	Disconnect []int `json:"disconnect,omitempty"`
}

func (c *Client) updateMembers(ctx context.Context, roomID int, op memberOp) (*model.Room, error) {
	q := url.Values{}
	q.Set("populate", "members")

	body := map[string]map[string]memberOp{"data": {"members": op}}
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/chat-rooms/"+strconv.Itoa(roomID), q, body, &env); err != nil {
		return nil, err
	}
	var room model.Room
	if err := json.Unmarshal(env.Data, &room); err != nil {
		return nil, fmt.Errorf("api room decode: %w", err)
	}
	return &room, nil
}

// ConnectMember adds a user to a room and returns the updated room.
func (c *Client) ConnectMember(ctx context.Context, roomID, userID int) (*model.Room, error) {
	return c.updateMembers(ctx, roomID, memberOp{Connect: []int{userID}})
}

// DisconnectMember removes a user from a room and returns the updated room.
func (c *Client) DisconnectMember(ctx context.Context, roomID, userID int) (*model.Room, error) {
	return c.updateMembers(ctx, roomID, memberOp{Disconnect: []int{userID}})
}

// DeleteRoom removes a room server-side. Issued when membership drops to one.
func (c *Client) DeleteRoom(ctx context.Context, roomID int) error {
	return c.do(ctx, http.MethodDelete, "/chat-rooms/"+strconv.Itoa(roomID), nil, nil, nil)
}

// ListMessages fetches one page of a room's history, newest first, page size
// model.PageSize. Callers reverse the page into ascending order.
func (c *Client) ListMessages(ctx context.Context, roomID, page int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("filters[chat_room][id][$eq]", strconv.Itoa(roomID))
	q.Set("sort", "sentAt:desc")
	q.Set("pagination[page]", strconv.Itoa(page))
	q.Set("pagination[pageSize]", strconv.Itoa(model.PageSize))
	q.Set("populate", "sender")

	var env envelope
	if err := c.do(ctx, http.MethodGet, "/chat-messages", q, nil, &env); err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := json.Unmarshal(env.Data, &msgs); err != nil {
		return nil, fmt.Errorf("api messages decode: %w", err)
	}
	return msgs, nil
}

// sendMessageRequest carries the sender as a bare id; the response expands it
// into a full profile.
type sendMessageRequest struct {
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
	ChatRoom int       `json:"chat_room"`
	Sender   int       `json:"sender"`
}

// SendMessage posts a message and returns the server-confirmed message with
// its assigned id and expanded sender profile.
func (c *Client) SendMessage(ctx context.Context, roomID, senderID int, text string, sentAt time.Time) (*model.Message, error) {
	q := url.Values{}
	q.Set("populate", "sender")

	body := map[string]sendMessageRequest{"data": {
		Text:     text,
		SentAt:   sentAt,
		ChatRoom: roomID,
		Sender:   senderID,
	}}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/chat-messages", q, body, &env); err != nil {
		return nil, err
	}
	var msg model.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return nil, fmt.Errorf("api message decode: %w", err)
	}
	return &msg, nil
}

// ListUsers returns all users (the friend list). Bare array, no envelope.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserOnline updates a user's online flag. The body is flat, not wrapped
// in a data envelope.
func (c *Client) SetUserOnline(ctx context.Context, userID int, online bool) error {
	body := map[string]bool{"isOnline": online}
	return c.do(ctx, http.MethodPut, "/users/"+strconv.Itoa(userID), nil, body, nil)
}
