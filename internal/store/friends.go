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

// Friends mirrors the user directory with presence flags. Presence mutations
// arrive either from the local session lifecycle (SetOnline) or merged from
// remote snapshots; a snapshot never wholesale-replaces the list.
type Friends struct {
	api    *api.Client
	cache  storage.StateCache
	userID int

	mu      sync.RWMutex
	friends []model.User
	lastErr string
}

// NewFriends creates the friend list store. cache may be nil.
func NewFriends(apiClient *api.Client, cache storage.StateCache, userID int) *Friends {
	return &Friends{api: apiClient, cache: cache, userID: userID}
}

func (f *Friends) List() []model.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.User, len(f.friends))
	copy(out, f.friends)
	return out
}

func (f *Friends) LastError() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastErr
}

// Hydrate seeds the list from the state cache. No-op without a cache or when
// friends are already loaded.
func (f *Friends) Hydrate(ctx context.Context) {
	if f.cache == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.friends) > 0 {
		return
	}
	friends, err := f.cache.LoadFriends(ctx, f.userID)
	if err != nil {
		logger.Errorf("friends hydrate: %v", err)
		return
	}
	f.friends = friends
}

// Load replaces the list with the server's user directory and returns it.
// On failure the previous list is kept.
func (f *Friends) Load(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("Friends.Load", time.Now())()
	friends, err := f.api.ListUsers(ctx)
	if err != nil {
		f.mu.Lock()
		f.lastErr = "failed to load friends"
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Lock()
	f.friends = friends
	f.lastErr = ""
	f.mu.Unlock()
	f.persist(ctx)
	return friends, nil
}

// SetOnline updates one user's online flag server-side.
func (f *Friends) SetOnline(ctx context.Context, userID int, online bool) error {
	if err := f.api.SetUserOnline(ctx, userID, online); err != nil {
		f.mu.Lock()
		f.lastErr = "failed to update presence"
		f.mu.Unlock()
		return err
	}
	f.mu.Lock()
	for i := range f.friends {
		if f.friends[i].ID == userID {
			f.friends[i].IsOnline = online
			break
		}
	}
	f.lastErr = ""
	f.mu.Unlock()
	return nil
}

// MergePresence applies a remote presence snapshot by id. Ids not present in
// the snapshot are left unchanged.
func (f *Friends) MergePresence(snapshot []model.Presence) {
	byID := make(map[int]bool, len(snapshot))
	for _, p := range snapshot {
		byID[p.ID] = p.IsOnline
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.friends {
		if online, ok := byID[f.friends[i].ID]; ok {
			f.friends[i].IsOnline = online
		}
	}
}

// Snapshot returns the simplified {id, isOnline} form that goes on the wire.
func (f *Friends) Snapshot() []model.Presence {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Presence, 0, len(f.friends))
	for i := range f.friends {
		out = append(out, f.friends[i].ToPresence())
	}
	return out
}

func (f *Friends) persist(ctx context.Context) {
	if f.cache == nil {
		return
	}
	f.mu.RLock()
	friends := make([]model.User, len(f.friends))
	copy(friends, f.friends)
	f.mu.RUnlock()
	if err := f.cache.SaveFriends(ctx, f.userID, friends); err != nil {
		logger.Errorf("friends persist: %v", err)
	}
}
