// Command client is a small terminal front end for the relay. It joins with
// the given display name, prints every event it receives, and sends each
// typed line as a message. "/who" fetches the roster, "/quit" leaves.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"

	"chat-relay/transport/ws"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "relay host:port")
	name := flag.String("name", "", "display name (1 to 20 characters)")
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "usage: client -name <username> [-addr host:port]")
		os.Exit(1)
	}

	if err := chat(*addr, *name); err != nil {
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
		os.Exit(1)
	}
}

func chat(addr, name string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ws.Command{Type: ws.CommandJoin, Username: name}); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	color.Cyan.Printf("connected to %s as %s\n", addr, name)

	done := make(chan struct{})
	go readLoop(conn, done)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		case line == "/who":
			if err := printRoster(addr); err != nil {
				color.Yellow.Printf("roster unavailable: %v\n", err)
			}
		default:
			if err := conn.WriteJSON(ws.Command{Type: ws.CommandMessage, Text: line}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}

	return scanner.Err()
}

func readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		render(raw)
	}
}

func render(raw []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return
	}

	switch head.Type {
	case ws.EventMessage:
		var evt ws.MessageEvent
		if json.Unmarshal(raw, &evt) == nil {
			color.Bold.Printf("%s: ", evt.Username)
			fmt.Println(evt.Text)
		}
	case ws.EventUserJoined:
		var evt ws.UserJoinedEvent
		if json.Unmarshal(raw, &evt) == nil {
			color.Green.Printf("-> %s joined\n", evt.Username)
		}
	case ws.EventUserLeft:
		var evt ws.UserLeftEvent
		if json.Unmarshal(raw, &evt) == nil {
			color.Red.Printf("<- %s left\n", evt.Username)
		}
	case ws.EventUserTyping:
		var evt ws.UserTypingEvent
		if json.Unmarshal(raw, &evt) == nil && evt.IsTyping {
			color.Gray.Printf("%s is typing...\n", evt.Username)
		}
	case ws.EventError:
		var evt ws.ErrorEvent
		if json.Unmarshal(raw, &evt) == nil {
			color.Yellow.Printf("rejected [%s]: %s\n", evt.Code, evt.Message)
		}
	}
}

func printRoster(addr string) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/participants", addr))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var participants []ws.ParticipantView
	if err := json.NewDecoder(resp.Body).Decode(&participants); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Username", "Typing", "Joined at"})
	for _, p := range participants {
		table.Append([]string{p.Username, strconv.FormatBool(p.IsTyping), p.JoinedAt})
	}
	table.Render()
	return nil
}
