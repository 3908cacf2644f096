// Command client is the composition root: it wires the api client, the
// transport adapter, the state cache and the three stores into a sync
// coordinator, and drives a session from a minimal command loop (the CLI
// stand-in for the chat UI).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/config"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/storage"
	"github.com/chatclient/internal/storage/memory"
	"github.com/chatclient/internal/storage/redis"
	"github.com/chatclient/internal/store"
	"github.com/chatclient/internal/syncer"
	"github.com/chatclient/internal/transport"
)

func main() {
	logger.SetPrefix("client")
	userID := flag.Int("user", 0, "current user id")
	flag.Parse()
	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: client -user <id>")
		os.Exit(2)
	}

	cfg := config.Load()
	ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute

	var cache storage.StateCache
	if cfg.Cache.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cli, err := redis.New(ctx, cfg.Cache.RedisURL, ttl)
		cancel()
		if err != nil {
			logger.Errorf("redis cache unavailable, using memory: %v", err)
			cache = memory.New(ttl)
		} else {
			cache = cli
		}
	} else {
		cache = memory.New(ttl)
	}
	defer cache.Close()

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.APIToken)
	adapter := transport.NewAdapter(cfg.SocketURL, transport.Options{
		WriteTimeout:      cfg.WSWriteTimeout,
		PongTimeout:       cfg.WSPongTimeout,
		MaxMessageSize:    cfg.WSMaxMessageSize,
		ReconnectMinDelay: cfg.ReconnectMinDelay,
		ReconnectMaxDelay: cfg.ReconnectMaxDelay,
	})

	directory := store.NewDirectory(apiClient, cache, *userID)
	timeline := store.NewTimeline(apiClient)
	friends := store.NewFriends(apiClient, cache, *userID)
	coord := syncer.New(adapter, directory, timeline, friends, *userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory.Hydrate(ctx)
	friends.Hydrate(ctx)

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err := coord.Start(startCtx)
	startCancel()
	if err != nil {
		logger.Errorf("session start: %v", err)
		os.Exit(1)
	}
	logger.Infof("session started for user %d", *userID)

	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		coord.Stop(stopCtx)
		stopCancel()
		logger.Info("session stopped")
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	fmt.Println("commands: rooms | friends | create <friendId> | open <roomId> | older | send <text> | invite <friendId> | leave <roomId> | close | quit")
	for {
		select {
		case <-quit:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if run(ctx, coord, directory, timeline, friends, line) {
				return
			}
		}
	}
}

// run executes one command line; returns true to quit.
func run(ctx context.Context, coord *syncer.Coordinator, directory *store.Directory, timeline *store.Timeline, friends *store.Friends, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	opCtx, opCancel := context.WithTimeout(ctx, 15*time.Second)
	defer opCancel()

	switch cmd {
	case "":
	case "quit", "exit":
		return true

	case "rooms":
		rooms := directory.List()
		sort.Slice(rooms, func(i, j int) bool {
			return rooms[i].LastMessageTime.After(rooms[j].LastMessageTime)
		})
		for _, r := range rooms {
			unread := ""
			if r.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", r.UnreadCount)
			}
			fmt.Printf("#%d members=%v last=%q%s\n", r.ID, r.MemberIDs(), r.LastMessage, unread)
		}

	case "friends":
		for _, f := range friends.List() {
			state := "offline"
			if f.IsOnline {
				state = "online"
			}
			fmt.Printf("#%d %s [%s]\n", f.ID, f.Username, state)
		}

	case "create":
		id, err := strconv.Atoi(rest)
		if err != nil {
			fmt.Println("create <friendId>")
			break
		}
		room, err := coord.CreateRoom(opCtx, id)
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Printf("created room #%d\n", room.ID)

	case "open":
		id, err := strconv.Atoi(rest)
		if err != nil {
			fmt.Println("open <roomId>")
			break
		}
		if err := coord.OpenRoom(opCtx, id); err != nil {
			fmt.Println("error:", err)
			break
		}
		printMessages(timeline)

	case "older":
		if err := timeline.LoadOlder(opCtx); err != nil {
			fmt.Println("error:", err)
			break
		}
		printMessages(timeline)

	case "send":
		roomID := timeline.ActiveRoom()
		if roomID == 0 {
			fmt.Println("no room open")
			break
		}
		if _, err := coord.SendMessage(opCtx, roomID, rest); err != nil {
			fmt.Println("error:", err)
		}

	case "invite":
		id, err := strconv.Atoi(rest)
		if err != nil {
			fmt.Println("invite <friendId>")
			break
		}
		roomID := timeline.ActiveRoom()
		if roomID == 0 {
			fmt.Println("no room open")
			break
		}
		if _, err := coord.InviteFriend(opCtx, roomID, id); err != nil {
			fmt.Println("error:", err)
		}

	case "leave":
		id, err := strconv.Atoi(rest)
		if err != nil {
			fmt.Println("leave <roomId>")
			break
		}
		if _, err := coord.LeaveRoom(opCtx, id); err != nil {
			fmt.Println("error:", err)
		}

	case "close":
		coord.CloseRoom()

	default:
		fmt.Println("unknown command:", cmd)
	}
	return false
}

func printMessages(timeline *store.Timeline) {
	for _, m := range timeline.Messages() {
		name := "?"
		if m.Sender != nil {
			name = m.Sender.Username
		}
		fmt.Printf("[%s] %s: %s\n", m.SentAt.Local().Format("15:04"), name, m.Text)
	}
	if timeline.HasMore() {
		fmt.Println("(type 'older' for more history)")
	}
}
