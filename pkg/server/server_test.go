package server

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/store"
)

// fakeSocket records every frame written to it. ReadMessage is never used
// by these tests; the handlers are driven directly.
type fakeSocket struct {
	mu        sync.Mutex
	frames    []map[string]any
	closed    bool
	deadlines int // SetWriteDeadline calls
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }

func (f *fakeSocket) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) SetReadLimit(_ int64) {}

func (f *fakeSocket) SetWriteDeadline(_ time.Time) error {
	f.mu.Lock()
	f.deadlines++
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) writeDeadlines() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deadlines
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// framesOfType returns the recorded frames carrying the given type tag.
func (f *fakeSocket) framesOfType(typ string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, frame := range f.frames {
		if frame["type"] == typ {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeSocket) lastOfType(typ string) (map[string]any, bool) {
	frames := f.framesOfType(typ)
	if len(frames) == 0 {
		return nil, false
	}
	return frames[len(frames)-1], true
}

func newTestServer(t *testing.T, cfg Config) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	srv := New(cfg, Dependencies{Store: st})
	t.Cleanup(srv.Close)
	return srv, st
}

// newPlayer registers a connection, creates its backing user, and binds
// the identity, as if the client had authenticated.
func newPlayer(t *testing.T, srv *Server, st *store.MemoryStore, username string) (*Conn, *fakeSocket, model.Identity) {
	t.Helper()
	u, err := st.CreateUser(context.Background(), username, "hash", "")
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	sock := &fakeSocket{}
	conn := srv.registry.Register(sock)
	ident := model.Identity{UserID: u.ID, Username: u.Username}
	if _, err := srv.registry.Authenticate(conn, ident); err != nil {
		t.Fatalf("Authenticate(%s): %v", username, err)
	}
	return conn, sock, ident
}

// startedMatch pairs two players and returns them with their running match.
func startedMatch(t *testing.T, srv *Server, st *store.MemoryStore) (m *Match, conns [2]*Conn, socks [2]*fakeSocket, idents [2]model.Identity) {
	t.Helper()

	conns[0], socks[0], idents[0] = newPlayer(t, srv, st, "alice")
	conns[1], socks[1], idents[1] = newPlayer(t, srv, st, "bob")
	srv.startMatch(conns[0], conns[1])

	id := conns[0].MatchID()
	if id == "" {
		t.Fatalf("startMatch did not bind a match id")
	}
	m, ok := srv.matches.Get(id)
	if !ok {
		t.Fatalf("started match %q not tracked", id)
	}
	return m, conns, socks, idents
}

func shortConfig() Config {
	cfg := DefaultConfig()
	cfg.TokenSecret = "test-secret"
	cfg.RoundDeadline = 0 // timers exercised explicitly where a test needs them
	cfg.MatchTTL = 0
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
