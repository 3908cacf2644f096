package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/store"
)

func TestFriends_LoadAndSetOnline(t *testing.T) {
	ctx := context.Background()
	s, client := newTestAPI(t)
	seedUsers(s, 1, 2, 3)

	f := store.NewFriends(client, nil, 1)
	friends, err := f.Load(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 3)

	require.NoError(t, f.SetOnline(ctx, 1, true))
	for _, u := range f.List() {
		if u.ID == 1 {
			assert.True(t, u.IsOnline)
		} else {
			assert.False(t, u.IsOnline)
		}
	}

	// The server saw the update too.
	friends, err = f.Load(ctx)
	require.NoError(t, err)
	for _, u := range friends {
		assert.Equal(t, u.ID == 1, u.IsOnline)
	}
}

func TestFriends_MergePresence(t *testing.T) {
	tests := []struct {
		name     string
		initial  []model.Presence
		snapshot []model.Presence
		want     map[int]bool
	}{
		{
			name:     "mentioned id updated, unmentioned unchanged",
			initial:  []model.Presence{{ID: 4, IsOnline: false}, {ID: 5, IsOnline: true}},
			snapshot: []model.Presence{{ID: 4, IsOnline: true}},
			want:     map[int]bool{4: true, 5: true},
		},
		{
			name:     "empty snapshot changes nothing",
			initial:  []model.Presence{{ID: 4, IsOnline: true}},
			snapshot: nil,
			want:     map[int]bool{4: true},
		},
		{
			name:     "unknown ids in snapshot are ignored",
			initial:  []model.Presence{{ID: 4, IsOnline: false}},
			snapshot: []model.Presence{{ID: 9, IsOnline: true}},
			want:     map[int]bool{4: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, client := newTestAPI(t)
			for _, p := range tt.initial {
				s.AddUser(model.User{ID: p.ID, IsOnline: p.IsOnline})
			}
			f := store.NewFriends(client, nil, 1)
			_, err := f.Load(ctx)
			require.NoError(t, err)

			f.MergePresence(tt.snapshot)

			got := make(map[int]bool)
			for _, u := range f.List() {
				got[u.ID] = u.IsOnline
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFriends_Snapshot(t *testing.T) {
	ctx := context.Background()
	s, client := newTestAPI(t)
	s.AddUser(model.User{ID: 1, Username: "alice", IsOnline: true, ProfileImage: "<svg>big blob</svg>"})
	s.AddUser(model.User{ID: 2, Username: "bob"})

	f := store.NewFriends(client, nil, 1)
	_, err := f.Load(ctx)
	require.NoError(t, err)

	snap := f.Snapshot()
	assert.ElementsMatch(t, []model.Presence{{ID: 1, IsOnline: true}, {ID: 2, IsOnline: false}}, snap)
}
