package storage

import (
	"context"

	"github.com/chatclient/internal/model"
)

// StateCache persists room and friend snapshots across client restarts so a
// session can render immediately while the authoritative lists load.
// Implementations: redis.Client, memory.Client (default, no external deps).
type StateCache interface {
	SaveRooms(ctx context.Context, userID int, rooms []model.Room) error
	LoadRooms(ctx context.Context, userID int) ([]model.Room, error)
	SaveFriends(ctx context.Context, userID int, friends []model.User) error
	LoadFriends(ctx context.Context, userID int) ([]model.User, error)
	Close() error
}
