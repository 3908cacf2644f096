package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatclient/internal/model"
)

const defaultTTL = 10 * time.Minute

type Client struct {
	cli *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, url string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{cli: cli, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func roomsKey(userID int) string   { return "rooms:" + strconv.Itoa(userID) }
func friendsKey(userID int) string { return "friends:" + strconv.Itoa(userID) }

func (c *Client) SaveRooms(ctx context.Context, userID int, rooms []model.Room) error {
	buf, err := json.Marshal(rooms)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, roomsKey(userID), buf, c.ttl).Err()
}

func (c *Client) LoadRooms(ctx context.Context, userID int) ([]model.Room, error) {
	val, err := c.cli.Get(ctx, roomsKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rooms []model.Room
	if err := json.Unmarshal(val, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) SaveFriends(ctx context.Context, userID int, friends []model.User) error {
	buf, err := json.Marshal(friends)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, friendsKey(userID), buf, c.ttl).Err()
}

func (c *Client) LoadFriends(ctx context.Context, userID int) ([]model.User, error) {
	val, err := c.cli.Get(ctx, friendsKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var friends []model.User
	if err := json.Unmarshal(val, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}
