package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatclient/internal/model"
)

const defaultTTL = 10 * time.Minute

type roomItem struct {
	rooms []model.Room
	exp   time.Time
}

type friendItem struct {
	friends []model.User
	exp     time.Time
}

type Client struct {
	ttl     time.Duration
	mu      sync.RWMutex
	rooms   map[int]roomItem
	friends map[int]friendItem
}

func New(ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{
		ttl:     ttl,
		rooms:   make(map[int]roomItem),
		friends: make(map[int]friendItem),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveRooms(ctx context.Context, userID int, rooms []model.Room) error {
	cp := make([]model.Room, len(rooms))
	copy(cp, rooms)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[userID] = roomItem{rooms: cp, exp: time.Now().Add(c.ttl)}
	return nil
}

func (c *Client) LoadRooms(ctx context.Context, userID int) ([]model.Room, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.rooms[userID]
	if !ok || time.Now().After(v.exp) {
		return nil, nil
	}
	cp := make([]model.Room, len(v.rooms))
	copy(cp, v.rooms)
	return cp, nil
}

func (c *Client) SaveFriends(ctx context.Context, userID int, friends []model.User) error {
	cp := make([]model.User, len(friends))
	copy(cp, friends)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.friends[userID] = friendItem{friends: cp, exp: time.Now().Add(c.ttl)}
	return nil
}

func (c *Client) LoadFriends(ctx context.Context, userID int) ([]model.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.friends[userID]
	if !ok || time.Now().After(v.exp) {
		return nil, nil
	}
	cp := make([]model.User, len(v.friends))
	copy(cp, v.friends)
	return cp, nil
}
