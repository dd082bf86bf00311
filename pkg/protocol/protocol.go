// Package protocol defines the JSON frames exchanged over the WebSocket
// connection: client requests selected by an "action" field and server
// frames tagged by a "type" field. One JSON object per text frame in each
// direction.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quizarena/quizarena/pkg/model"
)

// MaxFrameSize is the maximum accepted inbound frame size (64KB).
const MaxFrameSize = 65536

// Client actions.
const (
	ActionAuth        = "auth"
	ActionJoinQueue   = "join_queue"
	ActionAnswer      = "answer_question"
	ActionSendMessage = "send_message"
)

// Server frame types.
const (
	TypeStatus         = "status"
	TypeError          = "error"
	TypePlayersMatched = "players_matched"
	TypeGameStart      = "game_start"
	TypeRoundResult    = "round_result"
	TypeNextRound      = "next_round"
	TypeGameResult     = "game_result"
	TypeChatMessage    = "chat_message"
)

var ErrMalformed = errors.New("protocol: malformed message")
var ErrMissingAction = errors.New("protocol: missing action")
var ErrMissingToken = errors.New("protocol: missing token")

// ClientMessage is the envelope for every inbound frame. Which fields are
// meaningful depends on Action; Token is mandatory on all of them.
type ClientMessage struct {
	Action  string `json:"action"`
	Token   string `json:"token"`
	GameID  string `json:"game_id,omitempty"`
	Answer  any    `json:"answer,omitempty"`
	Message string `json:"message,omitempty"`
}

// Decode parses an inbound frame and enforces the envelope rules: valid
// JSON, a non-empty action, and a bearer token on every message.
func Decode(data []byte) (*ClientMessage, error) {
	msg := &ClientMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Action == "" {
		return nil, ErrMissingAction
	}
	if msg.Token == "" {
		return nil, ErrMissingToken
	}
	return msg, nil
}

// QuestionPayload is the client-visible projection of a question. The
// correct option index never crosses the wire mid-round.
type QuestionPayload struct {
	Prompt  string                    `json:"prompt"`
	Options [model.OptionCount]string `json:"options"`
}

// NewQuestionPayload strips a question down to what players may see.
func NewQuestionPayload(q *model.Question) QuestionPayload {
	return QuestionPayload{Prompt: q.Prompt, Options: q.Options}
}

// PlayerInfo is the identity summary announced when two players are paired.
type PlayerInfo struct {
	Username  string `json:"username"`
	AvatarRef string `json:"avatar_ref,omitempty"`
}

// Status is an informational frame (queued, authenticated, answer received).
type Status struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error reports a rejected request. The connection stays open.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlayersMatched announces a pairing before the first question.
type PlayersMatched struct {
	Type    string `json:"type"`
	Players struct {
		Player1 PlayerInfo `json:"player1"`
		Player2 PlayerInfo `json:"player2"`
	} `json:"players"`
}

// GameStart begins a match.
type GameStart struct {
	Type     string          `json:"type"`
	GameID   string          `json:"game_id"`
	Question QuestionPayload `json:"question"`
	Round    int             `json:"round"`
}

// RoundResult is the per-round outcome, one frame per recipient with
// recipient-relative scores.
type RoundResult struct {
	Type          string `json:"type"`
	Round         int    `json:"round"`
	YourScore     int    `json:"your_score"`
	OpponentScore int    `json:"opponent_score"`
	Message       string `json:"message"`
	YourAnswer    any    `json:"your_answer"`
	CorrectAnswer string `json:"correct_answer"`
}

// NextRound advances the match to the next question.
type NextRound struct {
	Type     string          `json:"type"`
	Round    int             `json:"round"`
	Question QuestionPayload `json:"question"`
	Scores   map[string]int  `json:"scores"` // keyed by username
}

// GameResult is the terminal outcome, recipient-relative.
type GameResult struct {
	Type          string         `json:"type"`
	Message       string         `json:"message"`
	YourScore     int            `json:"your_score"`
	OpponentScore int            `json:"opponent_score"`
	Scores        map[string]int `json:"scores"` // keyed by username
}

// ChatMessage is a relayed chat line from the other participant.
type ChatMessage struct {
	Type         string `json:"type"`
	FromUsername string `json:"from_username"`
	Message      string `json:"message"`
}

// NewStatus builds a status frame.
func NewStatus(message string) Status {
	return Status{Type: TypeStatus, Message: message}
}

// NewError builds an error frame.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// NewPlayersMatched builds the pairing announcement.
func NewPlayersMatched(p1, p2 PlayerInfo) PlayersMatched {
	msg := PlayersMatched{Type: TypePlayersMatched}
	msg.Players.Player1 = p1
	msg.Players.Player2 = p2
	return msg
}
