package server

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/protocol"
)

// ErrAlreadyAuthenticated rejects a second auth on an authenticated connection.
var ErrAlreadyAuthenticated = errors.New("server: connection already authenticated")

// socket is the subset of *websocket.Conn the server relies on.
// Tests substitute a recording implementation.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
}

// writeTimeout bounds every outbound frame so a half-open peer's transport
// backpressure cannot block a sender that holds a match lock.
const writeTimeout = 10 * time.Second

// Conn is one live transport connection. It is created on upgrade and
// destroyed on close; while destroyed it is purged from the queue and any
// match it belonged to.
type Conn struct {
	id   uint32
	sock socket

	writeMu sync.Mutex // serializes frames; gorilla allows one concurrent writer

	mu       sync.RWMutex // guards identity and matchID
	identity *model.Identity
	matchID  string
}

// ID returns the unique connection id.
func (c *Conn) ID() uint32 { return c.id }

// Send writes one JSON frame to the peer, bounded by writeTimeout.
func (c *Conn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.sock.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.sock.WriteJSON(v)
}

// Close closes the underlying transport; the read loop unwinds and runs
// the disconnect path exactly once.
func (c *Conn) Close() error {
	return c.sock.Close()
}

// Identity returns the authenticated identity, if any.
func (c *Conn) Identity() (model.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return model.Identity{}, false
	}
	return *c.identity, true
}

func (c *Conn) setIdentity(ident model.Identity) {
	c.mu.Lock()
	c.identity = &ident
	c.mu.Unlock()
}

// MatchID returns the id of the match this connection plays in, or "".
func (c *Conn) MatchID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.matchID
}

// SetMatchID records (or clears, with "") the match this connection plays in.
func (c *Conn) SetMatchID(id string) {
	c.mu.Lock()
	c.matchID = id
	c.mu.Unlock()
}

// Registry tracks every live connection and, once authenticated, its
// associated identity. One live connection per identity: a later
// authentication for the same identity displaces the earlier connection.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uint32]*Conn
	byUser map[int64]uint32 // userID -> connection id
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[uint32]*Conn),
		byUser: make(map[int64]uint32),
	}
}

// Register wraps a freshly upgraded transport in a Conn and tracks it.
func (r *Registry) Register(sock socket) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Generate random connection ID
	var id uint32
	for {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id = binary.BigEndian.Uint32(b)
		if id != 0 {
			if _, exists := r.conns[id]; !exists {
				break
			}
		}
	}

	sock.SetReadLimit(protocol.MaxFrameSize)
	conn := &Conn{id: id, sock: sock}
	r.conns[id] = conn
	return conn
}

// Authenticate binds a verified identity to a connection. A second auth on
// the same connection is rejected. If the identity is already bound to
// another live connection, that connection is displaced and returned so
// the caller can close it; its disconnect path must not unbind the new
// connection.
func (r *Registry) Authenticate(conn *Conn, ident model.Identity) (displaced *Conn, err error) {
	if _, ok := conn.Identity(); ok {
		return nil, ErrAlreadyAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if oldID, ok := r.byUser[ident.UserID]; ok && oldID != conn.id {
		displaced = r.conns[oldID]
	}
	r.byUser[ident.UserID] = conn.id
	conn.setIdentity(ident)
	return displaced, nil
}

// Lookup returns the identity bound to a connection id, if any.
func (r *Registry) Lookup(connID uint32) (model.Identity, bool) {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return model.Identity{}, false
	}
	return conn.Identity()
}

// Get returns the live connection for an id.
func (r *Registry) Get(connID uint32) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Unregister forgets a connection. The identity mapping is only removed if
// it still points at this connection, so a takeover is not undone by the
// displaced connection's cleanup.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, conn.id)
	if ident, ok := conn.Identity(); ok {
		if r.byUser[ident.UserID] == conn.id {
			delete(r.byUser, ident.UserID)
		}
	}
}

// Current reports whether the connection is still the one bound to its
// authenticated user, i.e. it has not been displaced by a takeover.
func (r *Registry) Current(conn *Conn) bool {
	ident, ok := conn.Identity()
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[ident.UserID] == conn.id
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
