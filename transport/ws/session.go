package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// hubCallTimeout bounds each synchronous hub call so a stalled hub can
	// never wedge a session's read loop forever.
	hubCallTimeout = 5 * time.Second
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateJoined
	stateClosed
)

// Ensure *Session can be handed to the broadcaster as a sink.
var _ contract.EventSink = (*Session)(nil)

// SessionConfig carries the per-connection tunables the handler reads from
// the environment.
type SessionConfig struct {
	SendBuffer       int
	MaxMessageSize   int64
	TypingQuiescence time.Duration
}

// Session is the per-connection actor. Its read pump turns inbound frames
// into hub calls; its write pump drains the outbound buffer the broadcaster
// fills through Consume. The state machine is Connecting -> Joined -> Closed,
// with a direct Connecting -> Closed edge when the peer hangs up before
// joining (nothing to announce in that case).
type Session struct {
	id   domain.ConnectionID
	hub  contract.IHub
	conn *websocket.Conn
	log  *slog.Logger
	cfg  SessionConfig

	send chan any
	done chan struct{}

	mu          sync.Mutex
	state       sessionState
	typingTimer *time.Timer

	closeOnce sync.Once
}

func NewSession(log *slog.Logger, hub contract.IHub, conn *websocket.Conn, cfg SessionConfig) *Session {
	id := domain.ConnectionID(newConnectionID())
	return &Session{
		id:   id,
		hub:  hub,
		conn: conn,
		log:  log.With("connection", string(id)),
		cfg:  cfg,
		send: make(chan any, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() domain.ConnectionID { return s.id }

// Run drives both pumps and blocks until the connection is gone and the
// session's registry entry has been released.
func (s *Session) Run() {
	go s.writePump()
	s.readPump()
}

// Consume implements contract.EventSink. It never blocks: a full buffer or a
// closed session loses this one delivery and reports it to the broadcaster.
func (s *Session) Consume(_ context.Context, e event.DomainEvent) error {
	wireEvt, ok := toWireEvent(e)
	if !ok {
		return nil
	}

	select {
	case <-s.done:
		return fmt.Errorf("session closed")
	case s.send <- wireEvt:
		return nil
	default:
		return fmt.Errorf("outbound buffer full")
	}
}

func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("Unexpected close", "error", err)
			} else {
				s.log.Debug("Connection closed", "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.log.Debug("Dropping unparseable command", "error", err)
			continue
		}
		s.handleCommand(cmd)
	}
}

// handleCommand enforces the session state machine locally: NotJoined and
// AlreadyJoined are rejected here and never reach the hub, so the mailbox
// only sees commands from sessions in a legal state.
func (s *Session) handleCommand(cmd Command) {
	switch cmd.Type {
	case CommandJoin:
		if s.currentState() != stateConnecting {
			s.reject(errors.ErrAlreadyJoined)
			return
		}
		ctx, cancel := s.callContext()
		defer cancel()
		participant, err := s.hub.Join(ctx, s.id, cmd.Username, s)
		if err != nil {
			s.reject(err)
			return
		}
		s.setState(stateJoined)
		s.log.Debug("Session joined", "username", participant.Username)

	case CommandMessage:
		if s.currentState() != stateJoined {
			s.reject(errors.ErrNotJoined)
			return
		}
		ctx, cancel := s.callContext()
		defer cancel()
		if _, err := s.hub.PostMessage(ctx, s.id, cmd.Text); err != nil {
			s.reject(err)
		}

	case CommandTyping:
		if s.currentState() != stateJoined {
			s.reject(errors.ErrNotJoined)
			return
		}
		if cmd.IsTyping {
			s.armTypingTimer()
		} else {
			s.disarmTypingTimer()
		}
		ctx, cancel := s.callContext()
		defer cancel()
		if err := s.hub.SetTyping(ctx, s.id, cmd.IsTyping); err != nil {
			s.reject(err)
		}

	default:
		s.log.Debug("Unknown command type", "type", cmd.Type)
	}
}

// armTypingTimer restarts the quiescence countdown. When the peer stops
// sending typing=true for the configured interval, the session reports
// typing=false on its behalf.
func (s *Session) armTypingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.cfg.TypingQuiescence, s.typingExpired)
}

func (s *Session) disarmTypingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}

func (s *Session) typingExpired() {
	if s.currentState() != stateJoined {
		return
	}
	ctx, cancel := s.callContext()
	defer cancel()
	if err := s.hub.SetTyping(ctx, s.id, false); err != nil {
		s.log.Debug("Typing quiescence update failed", "error", err)
	}
}

// reject reports a command failure to this peer only. Other connections are
// never affected by one session's bad command.
func (s *Session) reject(err error) {
	evt := ErrorEvent{Type: EventError, Code: errorCode(err), Message: err.Error()}
	select {
	case s.send <- evt:
	default:
		s.log.Debug("Error reply dropped", "code", evt.Code)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case evt := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(evt); err != nil {
				s.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close releases the registry entry before the session counts as Closed.
// Leaving from Joined broadcasts the departure exactly once; closing from
// Connecting has nothing to undo.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.disarmTypingTimer()

		if s.currentState() == stateJoined {
			ctx, cancel := s.callContext()
			if _, err := s.hub.Leave(ctx, s.id); err != nil && !stderrors.Is(err, errors.ErrNotFound) {
				s.log.Warn("Leave failed", "error", err)
			}
			cancel()
		}

		s.setState(stateClosed)
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state sessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), hubCallTimeout)
}
