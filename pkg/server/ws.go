package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/protocol"
	"github.com/quizarena/quizarena/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary pages during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and runs its read loop. One goroutine
// per connection; all writes to the socket go through Conn.Send.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn := s.registry.Register(sock)
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Info("client connected", "conn", conn.ID(), "remote", r.RemoteAddr)

	conn.Send(protocol.NewStatus("Welcome to QuizArena"))

	defer s.disconnect(conn)
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("read error", "conn", conn.ID(), "err", err)
			}
			return
		}
		s.handleMessage(conn, data)
	}
}

// disconnect tears a connection out of every structure it may be linked
// into: the registry, the queue, and its match. Runs exactly once per
// connection, synchronously, before the read goroutine exits.
func (s *Server) disconnect(conn *Conn) {
	conn.Close()
	s.registry.Unregister(conn)
	if s.queue.Remove(conn.ID()) {
		s.metrics.QueueDepth.Add(-1)
	}
	if id := conn.MatchID(); id != "" {
		if m, ok := s.matches.Get(id); ok {
			m.HandleDisconnect(conn.ID())
		}
	}
	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
	slog.Info("client disconnected", "conn", conn.ID())
}

// handleMessage decodes one inbound frame and dispatches it. Malformed
// frames get an error reply; the connection stays open.
func (s *Server) handleMessage(conn *Conn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrMissingAction):
			conn.Send(protocol.NewError("Missing action"))
		case errors.Is(err, protocol.ErrMissingToken):
			conn.Send(protocol.NewError("Missing token"))
		default:
			conn.Send(protocol.NewError("Malformed message"))
		}
		return
	}

	switch msg.Action {
	case protocol.ActionAuth:
		s.handleAuth(conn, msg)
	case protocol.ActionJoinQueue:
		s.handleJoinQueue(conn, msg)
	case protocol.ActionAnswer:
		s.handleAnswer(conn, msg)
	case protocol.ActionSendMessage:
		s.handleChat(conn, msg)
	default:
		conn.Send(protocol.NewError("Unknown action"))
	}
}

// handleAuth verifies the token and binds the identity to the connection.
// A user already connected elsewhere displaces the old connection; a
// connection that already authenticated is rejected.
func (s *Server) handleAuth(conn *Conn, msg *protocol.ClientMessage) {
	ident, err := s.verifyIdentity(msg.Token)
	if err != nil {
		s.metrics.FailedAuths.Add(1)
		conn.Send(protocol.NewError("Invalid token"))
		return
	}

	displaced, err := s.registry.Authenticate(conn, ident)
	if err != nil {
		conn.Send(protocol.NewError("Already authenticated"))
		return
	}
	if displaced != nil {
		s.displace(displaced)
		slog.Info("connection displaced", "user", ident.Username, "old_conn", displaced.ID(), "new_conn", conn.ID())
	}

	s.metrics.SuccessfulAuths.Add(1)
	conn.Send(protocol.NewStatus("Authenticated as " + ident.Username))
	slog.Info("client authenticated", "conn", conn.ID(), "user", ident.Username)
}

// displace evicts a connection that lost its identity to a newer one. Its
// queue slot and match are released here, synchronously, because its own
// disconnect path only runs once its read loop observes the close; in that
// window the stale entries would still be pairable.
func (s *Server) displace(displaced *Conn) {
	displaced.Send(protocol.NewError("Signed in from another connection"))
	displaced.Close()
	if s.queue.Remove(displaced.ID()) {
		s.metrics.QueueDepth.Add(-1)
	}
	if id := displaced.MatchID(); id != "" {
		if m, ok := s.matches.Get(id); ok {
			m.HandleDisconnect(displaced.ID())
		}
	}
}

// ensureAuth returns the identity bound to the connection, authenticating
// it from the message token when no identity is bound yet. Every action
// carries a token, so a client may skip the explicit auth step.
func (s *Server) ensureAuth(conn *Conn, msg *protocol.ClientMessage) (model.Identity, bool) {
	if ident, ok := conn.Identity(); ok {
		return ident, true
	}

	ident, err := s.verifyIdentity(msg.Token)
	if err != nil {
		s.metrics.FailedAuths.Add(1)
		conn.Send(protocol.NewError("Invalid token"))
		return model.Identity{}, false
	}
	displaced, err := s.registry.Authenticate(conn, ident)
	if err != nil {
		conn.Send(protocol.NewError("Already authenticated"))
		return model.Identity{}, false
	}
	if displaced != nil {
		s.displace(displaced)
	}
	s.metrics.SuccessfulAuths.Add(1)
	return ident, true
}

// verifyIdentity resolves a raw token to the identity it proves. The user
// row is looked up so a deleted account cannot keep playing on an old
// token.
func (s *Server) verifyIdentity(raw string) (model.Identity, error) {
	ident, err := s.verifier.Verify(raw)
	if err != nil {
		return model.Identity{}, err
	}
	user, err := s.store.GetUserByID(s.ctx, ident.UserID)
	if err != nil {
		return model.Identity{}, err
	}
	if user == nil {
		return model.Identity{}, store.ErrUnknownUser
	}
	return model.Identity{UserID: user.ID, Username: user.Username, Avatar: user.Avatar}, nil
}

// handleJoinQueue enqueues the connection and pairs the two oldest waiters
// when possible. A connection already in a match cannot queue.
func (s *Server) handleJoinQueue(conn *Conn, msg *protocol.ClientMessage) {
	ident, ok := s.ensureAuth(conn, msg)
	if !ok {
		return
	}
	if conn.MatchID() != "" {
		conn.Send(protocol.NewError("Already in a match"))
		return
	}

	if !s.queue.Enqueue(conn.ID()) {
		conn.Send(protocol.NewStatus("Already waiting for an opponent"))
		return
	}
	s.metrics.QueueDepth.Add(1)
	conn.Send(protocol.NewStatus("Waiting for an opponent"))
	slog.Info("client queued", "conn", conn.ID(), "user", ident.Username, "depth", s.queue.Len())

	s.tryPair()
}

// tryPair drains the queue two at a time, starting a match per pair.
// Connections that vanished while waiting are skipped by the post-start
// check in startMatch.
func (s *Server) tryPair() {
	for {
		idA, idB, ok := s.queue.PopPair()
		if !ok {
			return
		}
		s.metrics.QueueDepth.Add(-2)

		connA, okA := s.registry.Get(idA)
		connB, okB := s.registry.Get(idB)
		switch {
		case okA && okB:
			s.startMatch(connA, connB)
		case okA:
			s.queue.Enqueue(idA)
			s.metrics.QueueDepth.Add(1)
		case okB:
			s.queue.Enqueue(idB)
			s.metrics.QueueDepth.Add(1)
		}
	}
}

// handleAnswer forwards an answer to the match named in the message.
func (s *Server) handleAnswer(conn *Conn, msg *protocol.ClientMessage) {
	ident, ok := s.ensureAuth(conn, msg)
	if !ok {
		return
	}
	if msg.GameID == "" {
		conn.Send(protocol.NewError("Missing game_id"))
		return
	}
	if msg.Answer == nil {
		conn.Send(protocol.NewError("Missing answer"))
		return
	}

	m, ok := s.matches.Get(msg.GameID)
	if !ok {
		conn.Send(protocol.NewError("Unknown game"))
		return
	}
	switch err := m.SubmitAnswer(ident.UserID, msg.Answer); {
	case errors.Is(err, ErrAlreadyAnswered):
		conn.Send(protocol.NewError("You already answered this round"))
	case errors.Is(err, ErrNotInMatch):
		conn.Send(protocol.NewError("You are not in this game"))
	}
}

// handleChat relays a chat line to the opponent in the named match.
func (s *Server) handleChat(conn *Conn, msg *protocol.ClientMessage) {
	ident, ok := s.ensureAuth(conn, msg)
	if !ok {
		return
	}
	if msg.GameID == "" {
		conn.Send(protocol.NewError("Missing game_id"))
		return
	}
	text := sanitizeText(msg.Message)
	if text == "" {
		conn.Send(protocol.NewError("Empty message"))
		return
	}

	m, ok := s.matches.Get(msg.GameID)
	if !ok {
		conn.Send(protocol.NewError("Unknown game"))
		return
	}
	if err := m.Relay(ident.UserID, text); err != nil {
		conn.Send(protocol.NewError("You are not in this game"))
		return
	}
	conn.Send(protocol.NewStatus("Message sent"))
}

// sanitizeText strips markup tags and control characters from a chat line
// and trims surrounding whitespace. Chat is plain text on the wire.
func sanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		case unicode.IsControl(r) && r != '\n' && r != '\t':
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
