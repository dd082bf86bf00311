// Command client is a terminal QuizArena client for manual testing: it
// logs in (registering on demand), queues for a match, prints every server
// frame, and reads answers and chat lines from stdin.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quizarena/quizarena/pkg/protocol"
)

type authResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

func main() {
	server := flag.String("server", "localhost:8080", "server host:port")
	username := flag.String("user", "", "username (required)")
	password := flag.String("pass", "", "password (required)")
	register := flag.Bool("register", false, "create the account before logging in")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: client -user NAME -pass SECRET [-register] [-server HOST:PORT]")
		os.Exit(1)
	}

	if *register {
		if err := post(*server, "/api/register", *username, *password); err != nil {
			fmt.Fprintf(os.Stderr, "register: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("account created")
	}

	token, err := login(*server, *username, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+*server+"/ws", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer ws.Close()

	send := func(msg protocol.ClientMessage) {
		msg.Token = token
		if err := ws.WriteJSON(msg); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
	}

	send(protocol.ClientMessage{Action: protocol.ActionAuth})
	send(protocol.ClientMessage{Action: protocol.ActionJoinQueue})

	// The game id arrives with the game_start frame; answers and chat
	// need it.
	gameID := make(chan string, 1)

	go func() {
		var currentGame string
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nconnection closed: %v\n", err)
				os.Exit(0)
			}
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if id, ok := frame["game_id"].(string); ok && currentGame == "" {
				currentGame = id
				gameID <- id
			}
			printFrame(frame)
		}
	}()

	fmt.Println("type 1-4 to answer, /say TEXT to chat, /quit to leave")
	var game string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if game == "" {
			select {
			case game = <-gameID:
			case <-time.After(100 * time.Millisecond):
				fmt.Println("no match yet")
				continue
			}
		}
		switch {
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/say "):
			send(protocol.ClientMessage{
				Action:  protocol.ActionSendMessage,
				GameID:  game,
				Message: strings.TrimPrefix(line, "/say "),
			})
		default:
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > 4 {
				fmt.Println("type 1-4 to answer, /say TEXT to chat, /quit to leave")
				continue
			}
			send(protocol.ClientMessage{
				Action: protocol.ActionAnswer,
				GameID: game,
				Answer: n,
			})
		}
	}
}

func printFrame(frame map[string]any) {
	typ, _ := frame["type"].(string)
	switch typ {
	case protocol.TypeStatus, protocol.TypeError:
		fmt.Printf("[%s] %v\n", typ, frame["message"])
	case protocol.TypeChatMessage:
		fmt.Printf("<%v> %v\n", frame["from_username"], frame["message"])
	case protocol.TypeGameStart, protocol.TypeNextRound:
		q, _ := frame["question"].(map[string]any)
		fmt.Printf("\n--- round %v ---\n%v\n", frame["round"], q["prompt"])
		if opts, ok := q["options"].([]any); ok {
			for i, o := range opts {
				fmt.Printf("  %d. %v\n", i+1, o)
			}
		}
	case protocol.TypeRoundResult:
		fmt.Printf("%v  (you %v - %v opponent)\n",
			frame["message"], frame["your_score"], frame["opponent_score"])
	case protocol.TypeGameResult:
		fmt.Printf("\n=== %v ===\n", frame["message"])
	default:
		out, _ := json.Marshal(frame)
		fmt.Println(string(out))
	}
}

func login(server, username, password string) (string, error) {
	resp, err := postRaw(server, "/api/login", username, password)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("no token in response: %s", resp.Message)
	}
	return resp.Token, nil
}

func post(server, path, username, password string) error {
	_, err := postRaw(server, path, username, password)
	return err
}

func postRaw(server, path, username, password string) (*authResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := http.Post("http://"+server+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &authResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("%s: %s", resp.Status, out.Message)
	}
	return out, nil
}
