// Package stub is an in-memory implementation of the content API and event
// channel contract the client talks to. It exists so the client can be run
// and tested end to end without the real backend: services/stubserver serves
// it standalone, and the integration tests mount it on httptest servers.
package stub

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
)

type Server struct {
	hub *Hub

	mu         sync.Mutex
	users      map[int]model.User
	rooms      map[int]*model.Room
	messages   map[int][]model.Message
	nextRoomID int
	nextMsgID  int

	requests atomic.Int64
}

func New() *Server {
	return &Server{
		hub:        NewHub(),
		users:      make(map[int]model.User),
		rooms:      make(map[int]*model.Room),
		messages:   make(map[int][]model.Message),
		nextRoomID: 1,
		nextMsgID:  1,
	}
}

// Requests returns the number of REST requests served. Tests use it to
// assert that validation rejections never reach the network.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Hub exposes the relay for shutdown.
func (s *Server) Hub() *Hub { return s.hub }

// AddUser seeds a user.
func (s *Server) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// SeedRoom seeds a room with the given member ids and returns its id.
func (s *Server) SeedRoom(lastMessage string, memberIDs ...int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRoomID
	s.nextRoomID++
	s.rooms[id] = &model.Room{
		ID:              id,
		LastMessage:     lastMessage,
		LastMessageTime: time.Now().UTC(),
		Members:         s.membersLocked(memberIDs),
		CreatedAt:       time.Now().UTC(),
	}
	return id
}

// SeedMessage seeds one message and returns its id.
func (s *Server) SeedMessage(roomID, senderID int, text string, sentAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextMsgID
	s.nextMsgID++
	sender := s.users[senderID]
	s.messages[roomID] = append(s.messages[roomID], model.Message{
		ID:     id,
		Text:   text,
		SentAt: sentAt,
		RoomID: roomID,
		Sender: &sender,
	})
	return id
}

func (s *Server) membersLocked(ids []int) []model.User {
	members := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			members = append(members, u)
		} else {
			members = append(members, model.User{ID: id})
		}
	}
	return members
}

// Router builds the REST surface plus the /socket relay endpoint.
func (s *Server) Router(allowedOrigins string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.requests.Add(1)
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/chat-rooms", s.listRooms)
	r.Post("/chat-rooms", s.createRoom)
	r.Put("/chat-rooms/{id}", s.updateRoom)
	r.Delete("/chat-rooms/{id}", s.deleteRoom)
	r.Get("/chat-messages", s.listMessages)
	r.Post("/chat-messages", s.createMessage)
	r.Get("/users", s.listUsers)
	r.Put("/users/{id}", s.updateUser)
	r.Get("/socket", func(w http.ResponseWriter, req *http.Request) {
		s.requests.Add(-1) // the socket is not a REST request
		s.hub.ServeWS(w, req)
	})
	return r
}

type envelope struct {
	Data any   `json:"data"`
	Meta *meta `json:"meta,omitempty"`
}

type meta struct {
	Pagination pagination `json:"pagination"`
}

type pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("stub writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func pathInt(r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	userID := queryInt(r, "filters[users_permissions_users][id][$eq]", 0)
	pageSize := queryInt(r, "pagination[pageSize]", model.MaxRooms)

	s.mu.Lock()
	var rooms []model.Room
	for _, room := range s.rooms {
		if userID == 0 || room.HasMember(userID) {
			rooms = append(rooms, *room)
		}
	}
	s.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	total := len(rooms)
	if len(rooms) > pageSize {
		rooms = rooms[:pageSize]
	}
	writeJSON(w, http.StatusOK, envelope{Data: rooms, Meta: &meta{Pagination: pagination{
		Page: 1, PageSize: pageSize, PageCount: 1, Total: total,
	}}})
}

type createRoomRequest struct {
	Data struct {
		LastMessage     string    `json:"lastMessage"`
		LastMessageTime time.Time `json:"lastMessageTime"`
		UnreadCount     int       `json:"unreadCount"`
		Members         []int     `json:"members"`
	} `json:"data"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	id := s.nextRoomID
	s.nextRoomID++
	room := &model.Room{
		ID:              id,
		LastMessage:     req.Data.LastMessage,
		LastMessageTime: req.Data.LastMessageTime,
		UnreadCount:     req.Data.UnreadCount,
		Members:         s.membersLocked(req.Data.Members),
		CreatedAt:       time.Now().UTC(),
	}
	s.rooms[id] = room
	out := *room
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, envelope{Data: out})
}

type updateRoomRequest struct {
	Data struct {
		Members struct {
			Connect    []int `json:"connect"`
			Disconnect []int `json:"disconnect"`
		} `json:"members"`
	} `json:"data"`
}

func (s *Server) updateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	room, exists := s.rooms[id]
	if !exists {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	for _, uid := range req.Data.Members.Connect {
		if !room.HasMember(uid) {
			room.Members = append(room.Members, s.membersLocked([]int{uid})...)
		}
	}
	for _, uid := range req.Data.Members.Disconnect {
		for i, m := range room.Members {
			if m.ID == uid {
				room.Members = append(room.Members[:i:i], room.Members[i+1:]...)
				break
			}
		}
	}
	room.UpdatedAt = time.Now().UTC()
	out := *room
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, envelope{Data: out})
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	s.mu.Lock()
	delete(s.rooms, id)
	delete(s.messages, id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, envelope{Data: map[string]int{"id": id}})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID := queryInt(r, "filters[chat_room][id][$eq]", 0)
	page := queryInt(r, "pagination[page]", 1)
	pageSize := queryInt(r, "pagination[pageSize]", model.PageSize)
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	msgs := make([]model.Message, len(s.messages[roomID]))
	copy(msgs, s.messages[roomID])
	s.mu.Unlock()

	// sort=sentAt:desc with id as the tiebreaker so paging is stable.
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.After(msgs[j].SentAt)
		}
		return msgs[i].ID > msgs[j].ID
	})

	total := len(msgs)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	pageCount := (total + pageSize - 1) / pageSize

	writeJSON(w, http.StatusOK, envelope{Data: msgs[start:end], Meta: &meta{Pagination: pagination{
		Page: page, PageSize: pageSize, PageCount: pageCount, Total: total,
	}}})
}

type createMessageRequest struct {
	Data struct {
		Text     string    `json:"text"`
		SentAt   time.Time `json:"sentAt"`
		ChatRoom int       `json:"chat_room"`
		Sender   int       `json:"sender"`
	} `json:"data"`
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Data.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	s.mu.Lock()
	id := s.nextMsgID
	s.nextMsgID++
	sender := s.users[req.Data.Sender]
	msg := model.Message{
		ID:     id,
		Text:   req.Data.Text,
		SentAt: req.Data.SentAt,
		RoomID: req.Data.ChatRoom,
		Sender: &sender,
	}
	s.messages[req.Data.ChatRoom] = append(s.messages[req.Data.ChatRoom], msg)
	if room, ok := s.rooms[req.Data.ChatRoom]; ok {
		room.LastMessage = msg.Text
		room.LastMessageTime = msg.SentAt
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, envelope{Data: msg})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(w, http.StatusOK, users)
}

type updateUserRequest struct {
	IsOnline *bool `json:"isOnline"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	u, exists := s.users[id]
	if !exists {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if req.IsOnline != nil {
		u.IsOnline = *req.IsOnline
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u

	// Keep room member snapshots consistent with the user directory.
	for _, room := range s.rooms {
		for i := range room.Members {
			if room.Members[i].ID == id {
				room.Members[i] = u
			}
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, u)
}
