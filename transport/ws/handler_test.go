package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-relay/errors"
	"chat-relay/runtime"
)

const readTimeout = 2 * time.Second

// newRelayServer starts a full relay (registry, hub mailbox, HTTP surface)
// for one test.
func newRelayServer(t *testing.T, origins []string, quiescence time.Duration) *httptest.Server {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	hub := runtime.NewHub(log, registry, runtime.NewBroadcaster(log, registry), 64)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	// The mailbox is open once a command gets past ErrHubClosed.
	require.Eventually(t, func() bool {
		err := hub.SetTyping(context.Background(), "probe", false)
		return stderrors.Is(err, errors.ErrNotFound)
	}, time.Second, 5*time.Millisecond)

	handler := NewHandler(log, hub, HandlerConfig{
		AllowedOrigins: origins,
		Session: SessionConfig{
			SendBuffer:       16,
			MaxMessageSize:   4096,
			TypingQuiescence: quiescence,
		},
	})
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv
}

func wsAddr(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsAddr(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func joinAs(t *testing.T, srv *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(Command{Type: CommandJoin, Username: username}))
	return conn
}

// expectEvent reads one event and asserts its type.
func expectEvent(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(raw, &evt))
	require.Equal(t, wantType, evt["type"], "unexpected event: %s", string(raw))
	return evt
}

func TestHandler_JoinAndMessage(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	// Given alice in the room and bob joining after her
	alice := joinAs(t, srv, "alice")
	bob := joinAs(t, srv, "bob")

	joined := expectEvent(t, alice, EventUserJoined)
	req.Equal("bob", joined["username"])
	req.NotEmpty(joined["id"])

	// When bob posts a message
	req.NoError(bob.WriteJSON(Command{Type: CommandMessage, Text: "hello alice"}))

	// Then both peers receive it, bob included
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := expectEvent(t, conn, EventMessage)
		req.Equal("hello alice", msg["text"])
		req.Equal("bob", msg["username"])
		req.Equal(joined["id"], msg["userId"])
		req.NotEmpty(msg["id"])

		_, err := time.Parse(wireTimeLayout, msg["timestamp"].(string))
		req.NoError(err)
	}
}

func TestHandler_MessageBeforeJoin_RejectedThenRecoverable(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	conn := dial(t, srv)

	// When a message arrives before any join
	req.NoError(conn.WriteJSON(Command{Type: CommandMessage, Text: "too early"}))

	// Then only this peer is told, with a stable code
	errEvt := expectEvent(t, conn, EventError)
	req.Equal("NOT_JOINED", errEvt["code"])
	req.NotEmpty(errEvt["message"])

	// And the connection is still usable for a proper join
	req.NoError(conn.WriteJSON(Command{Type: CommandJoin, Username: "alice"}))

	other := joinAs(t, srv, "bob")
	defer other.Close()
	joined := expectEvent(t, conn, EventUserJoined)
	req.Equal("bob", joined["username"])
}

func TestHandler_DoubleJoin_Rejected(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	conn := joinAs(t, srv, "alice")

	// When the same connection joins again
	req.NoError(conn.WriteJSON(Command{Type: CommandJoin, Username: "alice-two"}))

	errEvt := expectEvent(t, conn, EventError)
	req.Equal("ALREADY_JOINED", errEvt["code"])

	// Then the roster still holds the first identity only
	resp, err := http.Get(srv.URL + "/participants")
	req.NoError(err)
	defer resp.Body.Close()

	var roster []ParticipantView
	req.NoError(json.NewDecoder(resp.Body).Decode(&roster))
	req.Len(roster, 1)
	req.Equal("alice", roster[0].Username)
}

func TestHandler_InvalidName_Rejected(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	conn := dial(t, srv)
	req.NoError(conn.WriteJSON(Command{Type: CommandJoin, Username: strings.Repeat("x", 21)}))

	errEvt := expectEvent(t, conn, EventError)
	req.Equal("INVALID_NAME", errEvt["code"])
}

func TestHandler_TypingQuiescence(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, 100*time.Millisecond)

	alice := joinAs(t, srv, "alice")
	bob := joinAs(t, srv, "bob")
	expectEvent(t, alice, EventUserJoined)

	// When bob reports typing once and then goes quiet
	req.NoError(bob.WriteJSON(Command{Type: CommandTyping, IsTyping: true}))

	// Then alice sees typing start, and typing stop without bob saying so
	typing := expectEvent(t, alice, EventUserTyping)
	req.Equal("bob", typing["username"])
	req.Equal(true, typing["isTyping"])

	stopped := expectEvent(t, alice, EventUserTyping)
	req.Equal("bob", stopped["username"])
	req.Equal(false, stopped["isTyping"])
}

func TestHandler_ExplicitTypingStop_DisarmsTimer(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, 100*time.Millisecond)

	alice := joinAs(t, srv, "alice")
	bob := joinAs(t, srv, "bob")
	expectEvent(t, alice, EventUserJoined)

	// When bob starts and explicitly stops typing
	req.NoError(bob.WriteJSON(Command{Type: CommandTyping, IsTyping: true}))
	req.NoError(bob.WriteJSON(Command{Type: CommandTyping, IsTyping: false}))

	typing := expectEvent(t, alice, EventUserTyping)
	req.Equal(true, typing["isTyping"])
	stopped := expectEvent(t, alice, EventUserTyping)
	req.Equal(false, stopped["isTyping"])

	// Then the quiescence timer does not fire a second stop; the next thing
	// alice hears is bob's message
	req.NoError(bob.WriteJSON(Command{Type: CommandMessage, Text: "done typing"}))
	time.Sleep(200 * time.Millisecond)
	msg := expectEvent(t, alice, EventMessage)
	req.Equal("done typing", msg["text"])
}

func TestHandler_Disconnect_BroadcastsLeft(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	alice := joinAs(t, srv, "alice")
	bob := joinAs(t, srv, "bob")
	expectEvent(t, alice, EventUserJoined)

	// When bob drops the connection without ceremony
	req.NoError(bob.Close())

	// Then alice is told exactly who left
	left := expectEvent(t, alice, EventUserLeft)
	req.Equal("bob", left["username"])

	// And the roster shrinks back to alice
	req.Eventually(func() bool {
		resp, err := http.Get(srv.URL + "/participants")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var roster []ParticipantView
		if err := json.NewDecoder(resp.Body).Decode(&roster); err != nil {
			return false
		}
		return len(roster) == 1 && roster[0].Username == "alice"
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_ListParticipants_JoinOrder(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	alice := joinAs(t, srv, "alice")
	joinAs(t, srv, "bob")
	expectEvent(t, alice, EventUserJoined)

	resp, err := http.Get(srv.URL + "/participants")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var roster []ParticipantView
	req.NoError(json.NewDecoder(resp.Body).Decode(&roster))
	req.Len(roster, 2)
	req.Equal("alice", roster[0].Username)
	req.Equal("bob", roster[1].Username)
	req.False(roster[0].IsTyping)
	_, err = time.Parse(wireTimeLayout, roster[0].JoinedAt)
	req.NoError(err)
}

func TestHandler_OriginCheck(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"http://allowed.example"}, time.Second)

	// Given a browser request from a foreign origin
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsAddr(srv), header)

	// Then the upgrade is refused
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// And the allowed origin gets through
	header = http.Header{"Origin": []string{"http://allowed.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsAddr(srv), header)
	req.NoError(err)
	_ = conn.Close()
}

func TestHandler_Health(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	resp, err := http.Get(srv.URL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestHandler_Stats(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t, []string{"*"}, time.Second)

	joinAs(t, srv, "alice")

	resp, err := http.Get(srv.URL + "/stats")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var stats struct {
		Participants int `json:"participants"`
		Goroutines   int `json:"goroutines"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&stats))
	req.Equal(1, stats.Participants)
	req.Positive(stats.Goroutines)
}
