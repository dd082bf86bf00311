package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// e2eClient is a real WebSocket client against an httptest server.
type e2eClient struct {
	t     *testing.T
	ws    *websocket.Conn
	token string
}

func newE2EClient(t *testing.T, ts *httptest.Server, username string) *e2eClient {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": "hunter22"})
	resp, err := http.Post(ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	defer resp.Body.Close()
	var reg struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if reg.Token == "" {
		t.Fatalf("register %s returned no token", username)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", username, err)
	}
	t.Cleanup(func() { ws.Close() })

	return &e2eClient{t: t, ws: ws, token: reg.Token}
}

func (c *e2eClient) send(action string, extra map[string]any) {
	c.t.Helper()
	msg := map[string]any{"action": action, "token": c.token}
	for k, v := range extra {
		msg[k] = v
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		c.t.Fatalf("send %s: %v", action, err)
	}
}

// readUntil reads frames until one of the wanted type arrives. Anything
// else is skipped; an error frame fails the test.
func (c *e2eClient) readUntil(typ string) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.ws.SetReadDeadline(deadline)
		var frame map[string]any
		if err := c.ws.ReadJSON(&frame); err != nil {
			c.t.Fatalf("waiting for %q: %v", typ, err)
		}
		switch frame["type"] {
		case typ:
			return frame
		case "error":
			c.t.Fatalf("waiting for %q, got error frame: %v", typ, frame["message"])
		}
	}
}

func TestEndToEndDuel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenSecret = "e2e-secret"
	cfg.MatchTTL = 0
	srv, st := newTestServer(t, cfg)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	alice := newE2EClient(t, ts, "alice")
	bob := newE2EClient(t, ts, "bob")

	alice.send("auth", nil)
	alice.readUntil("status") // welcome
	bob.send("auth", nil)
	bob.readUntil("status")

	alice.send("join_queue", nil)
	bob.send("join_queue", nil)

	aStart := alice.readUntil("game_start")
	bStart := bob.readUntil("game_start")
	gameID := aStart["game_id"].(string)
	if gameID == "" || gameID != bStart["game_id"] {
		t.Fatalf("game ids differ: %v vs %v", aStart["game_id"], bStart["game_id"])
	}

	// Empty bank: every round asks the fallback question, correct option 2.
	for round := 1; round <= RoundsTotal; round++ {
		alice.send("answer_question", map[string]any{"game_id": gameID, "answer": 2})
		bob.send("answer_question", map[string]any{"game_id": gameID, "answer": 2})

		aResult := alice.readUntil("round_result")
		if aResult["round"] != float64(round) {
			t.Fatalf("round_result round = %v, want %d", aResult["round"], round)
		}
		if aResult["message"] != "Correct!" {
			t.Fatalf("round %d message = %v, want Correct!", round, aResult["message"])
		}
		bob.readUntil("round_result")

		if round < RoundsTotal {
			alice.readUntil("next_round")
			bob.readUntil("next_round")
		}
	}

	wantMsg := fmt.Sprintf("It's a tie, %d-%d.", RoundsTotal, RoundsTotal)
	for _, c := range []*e2eClient{alice, bob} {
		result := c.readUntil("game_result")
		if result["message"] != wantMsg {
			t.Errorf("game_result message = %v, want %q", result["message"], wantMsg)
		}
	}

	for _, name := range []string{"alice", "bob"} {
		u, err := st.GetUserByUsername(context.Background(), name)
		if err != nil {
			t.Fatalf("GetUserByUsername(%s): %v", name, err)
		}
		if u.Score != int64(RoundsTotal) {
			t.Errorf("%s durable score = %d, want %d", name, u.Score, RoundsTotal)
		}
	}
}

func TestEndToEndChatAndDisconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenSecret = "e2e-secret"
	cfg.MatchTTL = 0
	srv, _ := newTestServer(t, cfg)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	alice := newE2EClient(t, ts, "alice")
	bob := newE2EClient(t, ts, "bob")

	// join_queue auto-authenticates from the message token.
	alice.send("join_queue", nil)
	bob.send("join_queue", nil)
	gameID := alice.readUntil("game_start")["game_id"].(string)
	bob.readUntil("game_start")

	alice.send("send_message", map[string]any{"game_id": gameID, "message": "gl hf"})
	chat := bob.readUntil("chat_message")
	if chat["from_username"] != "alice" || chat["message"] != "gl hf" {
		t.Errorf("chat frame = %v", chat)
	}

	alice.ws.Close()
	result := bob.readUntil("game_result")
	if result["message"] != "Your opponent disconnected. The match has ended." {
		t.Errorf("disconnect result = %v", result["message"])
	}
}
