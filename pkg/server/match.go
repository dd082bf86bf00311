package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizarena/quizarena/pkg/game"
	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/protocol"
)

// RoundsTotal is the fixed number of rounds in every match.
const RoundsTotal = 5

// ErrAlreadyAnswered rejects a second answer from the same participant in
// the same round. The recorded answer is unchanged.
var ErrAlreadyAnswered = errors.New("server: already answered this round")

// ErrNotInMatch rejects an operation referencing a match the user does not
// participate in, or a match that no longer accepts it.
var ErrNotInMatch = errors.New("server: not a participant of this match")

type matchState int

const (
	matchStarting matchState = iota
	matchAwaiting             // waiting for one or both answers
	matchEnded                // terminal; session about to be destroyed
)

// participant is one side of a match: a live connection, the identity it
// proved, and the per-match tally.
type participant struct {
	conn     *Conn
	identity model.Identity
	score    int
	answered bool
	answer   any
}

// Match owns the per-match state machine. Every mutation happens under mu,
// so answer submissions from both connections, timer expirations, and the
// disconnect event are serialized; the "both answered" check and the
// clear-and-advance that follows happen exactly once per round.
type Match struct {
	id  string
	srv *Server

	mu       sync.Mutex
	state    matchState
	round    int // 1..RoundsTotal, monotonically increasing
	question *model.Question
	players  [2]*participant

	roundTimer *time.Timer
	ttlTimer   *time.Timer
}

// Matches tracks active match sessions by id.
type Matches struct {
	mu   sync.RWMutex
	byID map[string]*Match
}

// NewMatches creates an empty match table.
func NewMatches() *Matches {
	return &Matches{byID: make(map[string]*Match)}
}

// Get returns an active match by id.
func (ms *Matches) Get(id string) (*Match, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.byID[id]
	return m, ok
}

// Count returns the number of active matches.
func (ms *Matches) Count() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.byID)
}

func (ms *Matches) add(m *Match) {
	ms.mu.Lock()
	ms.byID[m.id] = m
	ms.mu.Unlock()
}

func (ms *Matches) remove(id string) {
	ms.mu.Lock()
	delete(ms.byID, id)
	ms.mu.Unlock()
}

// startMatch spawns a session for a freshly paired pair of connections.
// Both are authenticated (the queue only admits authenticated
// connections). Match ids are UUID-based and never reused.
func (s *Server) startMatch(a, b *Conn) {
	identA, okA := a.Identity()
	identB, okB := b.Identity()
	if !okA || !okB {
		slog.Error("pairing produced an unauthenticated connection", "conn_a", a.ID(), "conn_b", b.ID())
		return
	}

	// A displaced connection can reach here if its queue slot was popped
	// before the takeover evicted it. A match needs two distinct users;
	// keep the user's current connection waiting and drop the stale one.
	if identA.UserID == identB.UserID {
		slog.Warn("pairing matched one user against themself", "user", identA.Username, "conn_a", a.ID(), "conn_b", b.ID())
		for _, conn := range []*Conn{a, b} {
			if s.registry.Current(conn) {
				if s.queue.Enqueue(conn.ID()) {
					s.metrics.QueueDepth.Add(1)
				}
				break
			}
		}
		return
	}

	m := &Match{
		id:  "game_" + uuid.NewString(),
		srv: s,
		players: [2]*participant{
			{conn: a, identity: identA},
			{conn: b, identity: identB},
		},
	}

	s.matches.add(m)
	a.SetMatchID(m.id)
	b.SetMatchID(m.id)
	s.metrics.MatchesStarted.Add(1)

	m.start()

	// A connection may have closed between leaving the queue and the
	// match id being set, in which case its disconnect path saw no match
	// to terminate. Re-check now that the id is visible.
	for _, conn := range []*Conn{a, b} {
		if _, ok := s.registry.Get(conn.ID()); !ok {
			m.HandleDisconnect(conn.ID())
		}
	}
}

// start runs the Starting state: draw a question, announce the pairing,
// and open round 1.
func (m *Match) start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A participant's disconnect can tear the session down between the
	// match id becoming visible and this call; a dead match stays dead.
	if m.state != matchStarting {
		return
	}

	m.question = m.srv.drawQuestion()
	m.round = 1
	m.state = matchAwaiting

	announce := protocol.NewPlayersMatched(
		protocol.PlayerInfo{Username: m.players[0].identity.Username, AvatarRef: m.players[0].identity.Avatar},
		protocol.PlayerInfo{Username: m.players[1].identity.Username, AvatarRef: m.players[1].identity.Avatar},
	)
	for _, p := range m.players {
		m.send(p, announce)
		m.send(p, protocol.GameStart{
			Type:     protocol.TypeGameStart,
			GameID:   m.id,
			Question: protocol.NewQuestionPayload(m.question),
			Round:    m.round,
		})
	}

	m.armRoundTimer()
	if ttl := m.srv.cfg.MatchTTL; ttl > 0 {
		m.ttlTimer = time.AfterFunc(ttl, m.expire)
	}

	slog.Info("match started", "match", m.id,
		"player1", m.players[0].identity.Username,
		"player2", m.players[1].identity.Username)
}

// SubmitAnswer records one participant's answer for the current round and
// resolves the round once both are in.
func (m *Match) SubmitAnswer(userID int64, raw any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.participantFor(userID)
	if p == nil || m.state != matchAwaiting {
		return ErrNotInMatch
	}
	if p.answered {
		return ErrAlreadyAnswered
	}

	p.answered = true
	p.answer = raw
	m.srv.metrics.AnswersReceived.Add(1)
	m.send(p, protocol.NewStatus("Answer received"))

	if m.players[0].answered && m.players[1].answered {
		m.resolve()
	}
	return nil
}

// Relay delivers a chat line to the other participant. The sender gets an
// acknowledgement from the caller, not an echo.
func (m *Match) Relay(fromUserID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.participantFor(fromUserID)
	if from == nil || m.state == matchEnded {
		return ErrNotInMatch
	}

	m.send(m.opponentOf(from), protocol.ChatMessage{
		Type:         protocol.TypeChatMessage,
		FromUsername: from.identity.Username,
		Message:      text,
	})
	m.srv.metrics.ChatMessagesRelayed.Add(1)
	return nil
}

// HandleDisconnect ends the match because a participant's connection was
// lost. No score is persisted; the remaining participant, if still
// connected, is told the opponent left.
func (m *Match) HandleDisconnect(connID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == matchEnded {
		return
	}
	var leaver *participant
	for _, p := range m.players {
		if p.conn.ID() == connID {
			leaver = p
		}
	}
	if leaver == nil {
		return
	}

	m.teardown()
	other := m.opponentOf(leaver)
	m.send(other, protocol.GameResult{
		Type:          protocol.TypeGameResult,
		Message:       "Your opponent disconnected. The match has ended.",
		YourScore:     other.score,
		OpponentScore: leaver.score,
		Scores:        m.scoreboard(),
	})

	m.srv.metrics.MatchesAbandoned.Add(1)
	slog.Info("match abandoned", "match", m.id, "left", leaver.identity.Username, "round", m.round)
}

// expire ends an abandoned match when the whole-match TTL fires. Both
// participants get a terminal result; nothing is persisted.
func (m *Match) expire() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == matchEnded {
		return
	}
	m.teardown()
	for _, p := range m.players {
		m.send(p, protocol.GameResult{
			Type:          protocol.TypeGameResult,
			Message:       "The match expired due to inactivity.",
			YourScore:     p.score,
			OpponentScore: m.opponentOf(p).score,
			Scores:        m.scoreboard(),
		})
	}

	m.srv.metrics.MatchesExpired.Add(1)
	slog.Info("match expired", "match", m.id, "round", m.round)
}

// roundExpired forfeits a round that missed its deadline. The captured
// round number guards against a timer racing a just-resolved round.
func (m *Match) roundExpired(round int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != matchAwaiting || m.round != round {
		return
	}
	m.srv.metrics.RoundTimeouts.Add(1)
	m.resolve()
}

// resolve runs the Resolving state: evaluate both answers, apply scores,
// emit per-recipient results, clear the answer set, and either advance to
// the next round or end the match. Caller holds m.mu.
func (m *Match) resolve() {
	if m.roundTimer != nil {
		m.roundTimer.Stop()
	}

	correctText := m.question.CorrectText()
	for _, p := range m.players {
		if p.answered && game.IsCorrect(p.answer, m.question.Correct, correctText) {
			p.score++
		}
	}

	for _, p := range m.players {
		opp := m.opponentOf(p)
		var msg string
		switch {
		case !p.answered:
			msg = fmt.Sprintf("Time is up! The correct answer was %q.", correctText)
		case game.IsCorrect(p.answer, m.question.Correct, correctText):
			msg = "Correct!"
		default:
			msg = fmt.Sprintf("Wrong! The correct answer was %q.", correctText)
		}
		m.send(p, protocol.RoundResult{
			Type:          protocol.TypeRoundResult,
			Round:         m.round,
			YourScore:     p.score,
			OpponentScore: opp.score,
			Message:       msg,
			YourAnswer:    p.answer,
			CorrectAnswer: correctText,
		})
	}

	// Clear the answer set atomically with the round transition.
	for _, p := range m.players {
		p.answered = false
		p.answer = nil
	}
	m.srv.metrics.RoundsResolved.Add(1)

	if m.round == RoundsTotal {
		m.finish()
		return
	}

	m.round++
	m.question = m.srv.drawQuestion()
	for _, p := range m.players {
		m.send(p, protocol.NextRound{
			Type:     protocol.TypeNextRound,
			Round:    m.round,
			Question: protocol.NewQuestionPayload(m.question),
			Scores:   m.scoreboard(),
		})
	}
	m.armRoundTimer()
}

// finish runs the normal Ending state: persist both tallies, emit the
// terminal result, destroy the session. Caller holds m.mu.
func (m *Match) finish() {
	m.teardown()

	for _, p := range m.players {
		if err := m.srv.scores.AddScore(m.srv.ctx, p.identity.UserID, int64(p.score)); err != nil {
			// Best-effort: both players are still owed their result.
			m.srv.metrics.ScoreWriteFailures.Add(1)
			slog.Error("score write failed", "match", m.id, "user", p.identity.UserID, "err", err)
		}
	}

	for _, p := range m.players {
		opp := m.opponentOf(p)
		var msg string
		switch {
		case p.score > opp.score:
			msg = fmt.Sprintf("You won %d-%d!", p.score, opp.score)
		case p.score < opp.score:
			msg = fmt.Sprintf("You lost %d-%d.", p.score, opp.score)
		default:
			msg = fmt.Sprintf("It's a tie, %d-%d.", p.score, opp.score)
		}
		m.send(p, protocol.GameResult{
			Type:          protocol.TypeGameResult,
			Message:       msg,
			YourScore:     p.score,
			OpponentScore: opp.score,
			Scores:        m.scoreboard(),
		})
	}

	m.srv.metrics.MatchesCompleted.Add(1)
	slog.Info("match completed", "match", m.id, "scores", m.scoreboard())
}

// teardown marks the session ended, stops timers, and unlinks it so the
// match id can never be addressed again. Caller holds m.mu.
func (m *Match) teardown() {
	m.state = matchEnded
	if m.roundTimer != nil {
		m.roundTimer.Stop()
	}
	if m.ttlTimer != nil {
		m.ttlTimer.Stop()
	}
	m.srv.matches.remove(m.id)
	for _, p := range m.players {
		if p.conn.MatchID() == m.id {
			p.conn.SetMatchID("")
		}
	}
}

func (m *Match) armRoundTimer() {
	if m.srv.cfg.RoundDeadline <= 0 {
		return
	}
	round := m.round
	m.roundTimer = time.AfterFunc(m.srv.cfg.RoundDeadline, func() {
		m.roundExpired(round)
	})
}

func (m *Match) participantFor(userID int64) *participant {
	for _, p := range m.players {
		if p.identity.UserID == userID {
			return p
		}
	}
	return nil
}

func (m *Match) opponentOf(p *participant) *participant {
	if m.players[0] == p {
		return m.players[1]
	}
	return m.players[0]
}

func (m *Match) scoreboard() map[string]int {
	return map[string]int{
		m.players[0].identity.Username: m.players[0].score,
		m.players[1].identity.Username: m.players[1].score,
	}
}

// send writes a frame to one participant. Write failures are not fatal to
// the match; a dead transport surfaces through the disconnect path.
func (m *Match) send(p *participant, v any) {
	if err := p.conn.Send(v); err != nil {
		slog.Debug("match send failed", "match", m.id, "user", p.identity.Username, "err", err)
	}
}
