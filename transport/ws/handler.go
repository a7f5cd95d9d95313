package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	goruntime "runtime"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"

	"chat-relay/contract"
	"chat-relay/domain"
)

func newConnectionID() string {
	return uuid.NewString()
}

// HandlerConfig is the HTTP-facing slice of the server configuration.
type HandlerConfig struct {
	AllowedOrigins []string
	Session        SessionConfig
}

// Handler exposes the relay over HTTP: the /ws upgrade endpoint plus the
// read-only endpoints (roster, health, self-stats).
type Handler struct {
	log      *slog.Logger
	hub      contract.IHub
	upgrader websocket.Upgrader
	cfg      HandlerConfig
}

func NewHandler(log *slog.Logger, hub contract.IHub, cfg HandlerConfig) *Handler {
	return &Handler{
		log: log,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		cfg: cfg,
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from the configured origins. "*" disables
// the check.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := lo.Contains(allowedOrigins, "*")
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/participants", h.ListParticipants).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	return r
}

// ServeWS upgrades the connection and runs a Session until the peer is gone.
// Connect and disconnect are transport events; the session translates them
// into hub lifecycle calls on its own.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := NewSession(h.log, h.hub, conn, h.cfg.Session)
	h.log.Info("Connection established",
		"connection", string(session.ID()),
		"remote", r.RemoteAddr)

	session.Run()

	h.log.Info("Connection closed", "connection", string(session.ID()))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat relay is running")
}

// ParticipantView is the JSON shape of one roster entry.
type ParticipantView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
	JoinedAt string `json:"joinedAt"`
}

// ListParticipants serves the registry snapshot in join order. The socket
// protocol itself never pushes a roster; late joiners who want one read it
// here.
func (h *Handler) ListParticipants(w http.ResponseWriter, _ *http.Request) {
	views := lo.Map(h.hub.Snapshot(), func(p domain.Participant, _ int) ParticipantView {
		return ParticipantView{
			ID:       string(p.ID),
			Username: p.Username,
			IsTyping: p.IsTyping,
			JoinedAt: formatTimestamp(p.JoinedAt),
		}
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

type statsResponse struct {
	Participants int     `json:"participants"`
	Goroutines   int     `json:"goroutines"`
	RSSBytes     uint64  `json:"rssBytes"`
	CPUPercent   float64 `json:"cpuPercent"`
	PIDStatus    string  `json:"pidStatus"`
}

// Stats reports the process's own health metrics next to the participant
// count.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		h.log.Error("Failed to inspect own process", "error", err)
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}

	rss, cpu, status, err := selfStats(p)
	if err != nil {
		h.log.Error("Failed to collect self stats", "error", err)
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statsResponse{
		Participants: len(h.hub.Snapshot()),
		Goroutines:   goruntime.NumGoroutine(),
		RSSBytes:     rss,
		CPUPercent:   cpu,
		PIDStatus:    status,
	})
}

// selfStats retrieves memory, CPU, and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
