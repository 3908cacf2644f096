package store_test

import (
	"net/http/httptest"
	"testing"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/stub"
)

// newTestAPI mounts the stub content API on an httptest server and returns
// it together with a client pointed at it.
func newTestAPI(t *testing.T) (*stub.Server, *api.Client) {
	t.Helper()
	s := stub.New()
	ts := httptest.NewServer(s.Router("*"))
	t.Cleanup(ts.Close)
	return s, api.NewClient(ts.URL, "test-token")
}

func seedUsers(s *stub.Server, ids ...int) {
	names := map[int]string{1: "alice", 2: "bob", 3: "carol", 4: "dave", 5: "erin"}
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = "user"
		}
		s.AddUser(model.User{ID: id, Username: name})
	}
}
