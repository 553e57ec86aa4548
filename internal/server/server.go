// Package server реализует HTTP-сервер состояния консоли: проверка работоспособности,
// метрики и просмотр текущей сессии, списка комнат и ленты.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-console/internal/domain"
	applog "chat-console/internal/log"
	"chat-console/internal/pkg/config"
	"chat-console/internal/session"
	"chat-console/internal/timeline"
)

// SessionView отдает снимок текущей сессии.
type SessionView interface {
	Snapshot() (session.Snapshot, bool)
}

// RoomView отдает список комнат и выбранную комнату.
type RoomView interface {
	Filter(query string) []domain.Room
	Selected() (domain.Room, bool)
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	sessions   SessionView
	rooms      RoomView
	log        *slog.Logger
}

type replyView struct {
	Key      string `json:"key"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

type messageView struct {
	ID         string         `json:"id,omitempty"`
	UUID       string         `json:"uuid,omitempty"`
	Key        string         `json:"key"`
	SenderID   string         `json:"senderId"`
	Kind       string         `json:"kind"`
	Text       string         `json:"text"`
	ImageURL   string         `json:"imageUrl,omitempty"`
	Mine       bool           `json:"mine"`
	Translated bool           `json:"translated"`
	Reactions  map[string]int `json:"reactions,omitempty"`
	Reply      *replyView     `json:"reply,omitempty"`
	CreatedAt  string         `json:"createdAt,omitempty"`
}

type roomsResponse struct {
	Selected string        `json:"selected,omitempty"`
	Rooms    []domain.Room `json:"rooms"`
}

// New создает сервер. gatherer может быть nil, тогда /metrics не публикуется.
func New(cfg config.Status, sessions SessionView, rooms RoomView, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		rooms:    rooms,
		log:      logger.With("component", "status_server"),
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  &applog.PrintAdapter{Logger: s.log},
		NoColor: true,
	}))
	chiRouter.Use(middleware.Recoverer)

	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if gatherer != nil {
		chiRouter.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	chiRouter.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Get("/rooms", s.handleRooms)
		r.Get("/timeline", s.handleTimeline)
	})

	s.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      chiRouter,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.sessions.Snapshot()
	if !ok {
		http.Error(w, "Комната не выбрана", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	resp := roomsResponse{Rooms: s.rooms.Filter(r.URL.Query().Get("q"))}
	if selected, ok := s.rooms.Selected(); ok {
		resp.Selected = selected.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.sessions.Snapshot()
	if !ok {
		http.Error(w, "Комната не выбрана", http.StatusNotFound)
		return
	}
	views := make([]messageView, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		views = append(views, toView(m))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": snap.SessionID,
		"roomId":    snap.Room.ID,
		"state":     snap.State,
		"messages":  views,
	})
}

func toView(m domain.Message) messageView {
	v := messageView{
		ID:         m.ID,
		UUID:       m.UUID,
		Key:        m.Key(),
		SenderID:   m.SenderID,
		Kind:       string(m.Content.Kind),
		Text:       m.DisplayText(),
		ImageURL:   m.Content.ImageURL,
		Mine:       m.Mine,
		Translated: m.Translated(),
		CreatedAt:  m.CreatedAt,
	}
	if len(m.Reactions) > 0 {
		v.Reactions = make(map[string]int, len(m.Reactions))
		for k, n := range m.Reactions {
			v.Reactions[string(k)] = n
		}
	}
	if reply, ok := timeline.ReplyPreview(m); ok {
		key := reply.UUID
		if key == "" {
			key = reply.ID
		}
		v.Reply = &replyView{Key: key, SenderID: reply.SenderID, Text: reply.Content.DisplayText()}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down status server")
	return s.HTTPServer.Shutdown(ctx)
}
