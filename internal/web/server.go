package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/discord-voice-bridge/internal/bridge"
	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the viewer websocket, a stats endpoint and metrics.
type Server struct {
	mgr    *session.Manager
	router *bridge.Bridge
	client *inference.Client
	http   *http.Server

	upgrader websocket.Upgrader
}

func NewServer(addr string, mgr *session.Manager, router *bridge.Bridge, client *inference.Client) *Server {
	s := &Server{
		mgr:    mgr,
		router: router,
		client: client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// viewers are served from arbitrary origins; the payload is
			// already broadcast to anyone who connects
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api/voice", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Post("/sessions/{guildID}/{channelID}/settings", s.handleSettings)
	})
	r.Get("/ws/voice/{guildID}/{channelID}", s.handleViewer)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the listener on its own goroutine.
func (s *Server) Start() {
	go func() {
		logging.Infow("web: listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorw("web: server failed", "err", err)
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"inference": s.client.State().String(),
	})
}

// handleSessions reports every live session plus inference connection
// health, the operator's one-stop status view.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":          s.mgr.Snapshot(),
		"inference_state":   s.client.State().String(),
		"inference_pending": s.client.PendingCount(),
	})
}

type settingsRequest struct {
	TargetLanguage string `json:"target_language"`
	GenerateTTS    bool   `json:"generate_tts"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	channelID := chi.URLParam(r, "channelID")
	sess, ok := s.mgr.Get(guildID, channelID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session for room"})
		return
	}
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return
	}
	if req.TargetLanguage == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target_language is required"})
		return
	}
	sess.UpdateSettings(req.TargetLanguage, req.GenerateTTS)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleViewer upgrades the connection and streams the room's results
// until the viewer disconnects or the session ends.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	channelID := chi.URLParam(r, "channelID")
	topic, ok := s.router.Topic(guildID + ":" + channelID)
	if !ok {
		http.Error(w, "no active session for room", http.StatusNotFound)
		return
	}
	sub := topic.Subscribe(32)
	if sub == nil {
		http.Error(w, "session ended", http.StatusGone)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		logging.Warnw("web: viewer upgrade failed", "err", err)
		return
	}
	logging.Infow("web: viewer connected",
		logging.RoomFields(guildID, channelID)...)

	// reader detects viewer disconnect; incoming data is discarded
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		sub.Close()
		_ = conn.Close()
		logging.Infow("web: viewer disconnected",
			logging.RoomFields(guildID, channelID)...)
	}()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.C:
			if !ok {
				// session ended; tell the viewer before closing
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
