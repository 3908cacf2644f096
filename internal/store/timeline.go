package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
)

// Timeline is the ordered message log of the currently open room, with
// backward pagination. Pages arrive server-sorted newest first and are
// reversed to ascending order before storage; live appends keep call order,
// so the sequence is only guaranteed timestamp-sorted at load time.
//
// Every fetch is tagged with the generation it was issued under. Open bumps
// the generation, so a stale page response landing after a room switch is
// discarded instead of clobbering the newer room's messages.
type Timeline struct {
	api *api.Client

	mu       sync.RWMutex
	roomID   int // 0 = no room open
	messages []model.Message
	page     int
	hasMore  bool
	gen      uint64
	lastErr  string
}

func NewTimeline(apiClient *api.Client) *Timeline {
	return &Timeline{api: apiClient}
}

// Messages returns the current sequence, oldest first.
func (t *Timeline) Messages() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// ActiveRoom returns the open room id, 0 when closed.
func (t *Timeline) ActiveRoom() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roomID
}

// Page returns the current 1-based page number.
func (t *Timeline) Page() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.page
}

// HasMore reports whether older history remains to be fetched.
func (t *Timeline) HasMore() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasMore
}

// LastError returns the most recent recoverable error notice.
func (t *Timeline) LastError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Open resets the timeline to roomID and fetches page one. A response from a
// fetch superseded by a newer Open is dropped.
func (t *Timeline) Open(ctx context.Context, roomID int) error {
	defer logger.DeferLogDuration("Timeline.Open", time.Now())()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.roomID = roomID
	t.messages = nil
	t.page = 1
	t.hasMore = true
	t.mu.Unlock()

	msgs, err := t.api.ListMessages(ctx, roomID, 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		// A newer Open or Close won the race; this response is stale.
		logger.Debugf("timeline: dropping stale page 1 for room %d", roomID)
		return nil
	}
	if err != nil {
		t.lastErr = "failed to load messages"
		return err
	}
	t.messages = ascending(msgs)
	t.hasMore = len(msgs) == model.PageSize
	t.lastErr = ""
	return nil
}

// LoadOlder fetches the next older page and prepends it. Only valid while
// HasMore is true. Previously loaded messages are never reordered; callers
// that care about scroll position measure around the prepend themselves.
func (t *Timeline) LoadOlder(ctx context.Context) error {
	t.mu.Lock()
	if t.roomID == 0 || !t.hasMore {
		t.mu.Unlock()
		return ErrNoHistory
	}
	gen := t.gen
	roomID := t.roomID
	next := t.page + 1
	t.mu.Unlock()

	msgs, err := t.api.ListMessages(ctx, roomID, next)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		logger.Debugf("timeline: dropping stale page %d for room %d", next, roomID)
		return nil
	}
	if err != nil {
		t.lastErr = "failed to load messages"
		return err
	}
	t.messages = append(ascending(msgs), t.messages...)
	t.page = next
	t.hasMore = len(msgs) == model.PageSize
	t.lastErr = ""
	return nil
}

// Send posts a message and appends the server-confirmed result (with its
// assigned id and expanded sender) to the live end. Empty or whitespace-only
// text is rejected without contacting the server. The returned message is
// what the caller broadcasts.
func (t *Timeline) Send(ctx context.Context, roomID, senderID int, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := t.api.SendMessage(ctx, roomID, senderID, text, time.Now().UTC())
	if err != nil {
		t.mu.Lock()
		t.lastErr = "failed to send message"
		t.mu.Unlock()
		return nil, err
	}

	t.mu.Lock()
	if t.roomID == roomID {
		t.messages = append(t.messages, *msg)
	}
	t.lastErr = ""
	t.mu.Unlock()
	return msg, nil
}

// AppendRemote is the only entry point for remote-pushed messages. It
// appends to the live end of the open room's sequence; a message for any
// other room is not this timeline's concern.
func (t *Timeline) AppendRemote(roomID int, msg model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.roomID != roomID {
		return
	}
	t.messages = append(t.messages, msg)
}

// Close discards the timeline state when the room view closes. Any in-flight
// fetch response is invalidated.
func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.roomID = 0
	t.messages = nil
	t.page = 0
	t.hasMore = false
	t.lastErr = ""
}

// ascending reverses a newest-first page in place and returns it.
func ascending(msgs []model.Message) []model.Message {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}
