// Command chattester drives the /api/ws endpoint from a terminal.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/handler/ws"
	"github.com/zhouzirui/atlas-chat/backend/internal/logging"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/api/ws", "WebSocket endpoint")
	country := flag.String("country", "USA", "country the chatbot answers for")
	session := flag.String("session", "", "continue an existing session")
	timeout := flag.Duration("timeout", 90*time.Second, "time to wait for a reply")
	flag.Parse()

	logging.Setup("info", "console", os.Stderr)

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("dial failed")
	}
	defer conn.Close()

	var hello ws.OutgoingMessage
	if err := conn.ReadJSON(&hello); err != nil {
		log.Fatal().Err(err).Msg("handshake failed")
	}

	sessionID := *session
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		data, _ := json.Marshal(ws.SubmitData{Message: line, Country: *country})
		if err := conn.WriteJSON(ws.InboundMessage{Type: ws.TypeSubmit, SessionID: sessionID, Data: data}); err != nil {
			log.Fatal().Err(err).Msg("send failed")
		}

		id, err := readReply(conn, *timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("read failed")
		}
		if id != "" {
			sessionID = id
		}
		fmt.Print("> ")
	}
}

type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// readReply prints prefixes as they arrive and returns after the turn or an
// error frame.
func readReply(conn *websocket.Conn, timeout time.Duration) (string, error) {
	printed := 0
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", err
		}
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return "", err
		}

		switch f.Type {
		case ws.TypeSession:
			fmt.Printf("[session %s]\n", f.SessionID)
		case ws.TypePrefix:
			var p struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(f.Data, &p)
			if len(p.Text) > printed {
				fmt.Print(p.Text[printed:])
				printed = len(p.Text)
			}
		case ws.TypeTurn:
			fmt.Println()
			return f.SessionID, nil
		case ws.TypeError:
			var e ws.ErrorData
			_ = json.Unmarshal(f.Data, &e)
			fmt.Printf("\n[error %d] %s\n", e.Status, e.Message)
			return f.SessionID, nil
		}
	}
}
