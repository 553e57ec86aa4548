package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-console/internal/domain"
	"chat-console/internal/metrics"
	"chat-console/internal/pkg/config"
	"chat-console/internal/session"
)

type fakeSessions struct {
	snap session.Snapshot
	ok   bool
}

func (f fakeSessions) Snapshot() (session.Snapshot, bool) { return f.snap, f.ok }

type fakeRooms struct {
	list     []domain.Room
	selected string
}

func (f fakeRooms) Filter(q string) []domain.Room {
	if q == "" {
		return f.list
	}
	var out []domain.Room
	for _, r := range f.list {
		if r.Name == q {
			out = append(out, r)
		}
	}
	return out
}

func (f fakeRooms) Selected() (domain.Room, bool) {
	for _, r := range f.list {
		if r.ID == f.selected {
			return r, true
		}
	}
	return domain.Room{}, false
}

func serve(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	srv.HTTPServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestServer(t *testing.T) {
	room := domain.Room{ID: "r1", Name: "Morning"}
	snap := session.Snapshot{
		SessionID: "s-1",
		Room:      room,
		State:     session.StateLive,
		StartedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		Messages: []domain.Message{
			{
				ID: "1", SenderID: "u1",
				Content:     domain.Content{Kind: domain.KindText, Code: domain.CodeText, Raw: "안녕", Text: "안녕"},
				Visible:     true,
				Reactions:   domain.ReactionTally{domain.ReactionHeart: 2},
				Translation: &domain.Translation{Text: "hello", Original: "안녕", OriginalLanguage: "ko"},
			},
			{
				ID: "2", UUID: "u-2", SenderID: "org_v1", Mine: true,
				Content:    domain.Content{Kind: domain.KindText, Code: domain.CodeText, Raw: "hi", Text: "hi"},
				Visible:    true,
				ReplyToKey: "1",
				Reply: &domain.ReplySnapshot{ID: "1", SenderID: "u1", Visible: true,
					Content: domain.Content{Kind: domain.KindText, Text: "안녕"}},
			},
		},
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Unknown()

	srv := New(config.Status{Host: "127.0.0.1", Port: 8090},
		fakeSessions{snap: snap, ok: true},
		fakeRooms{list: []domain.Room{room, {ID: "r2", Name: "Evening"}}, selected: "r1"},
		reg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("Проверка работоспособности", func(t *testing.T) {
		rr := serve(t, srv, "/health")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	t.Run("Адрес сервера", func(t *testing.T) {
		assert.Equal(t, "127.0.0.1:8090", srv.HTTPServer.Addr)
	})

	t.Run("Метрики", func(t *testing.T) {
		rr := serve(t, srv, "/metrics")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "chat_console_unknown_actions_total 1")
	})

	t.Run("Текущая сессия", func(t *testing.T) {
		rr := serve(t, srv, "/api/v1/session")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "s-1", resp["sessionId"])
		assert.Equal(t, "live", resp["state"])
		assert.NotContains(t, resp, "messages")
	})

	t.Run("Список комнат с фильтром", func(t *testing.T) {
		rr := serve(t, srv, "/api/v1/rooms?q=Evening")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp roomsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "r1", resp.Selected)
		require.Len(t, resp.Rooms, 1)
		assert.Equal(t, "r2", resp.Rooms[0].ID)
	})

	t.Run("Лента", func(t *testing.T) {
		rr := serve(t, srv, "/api/v1/timeline")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			RoomID   string        `json:"roomId"`
			Messages []messageView `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "r1", resp.RoomID)
		require.Len(t, resp.Messages, 2)

		first := resp.Messages[0]
		assert.Equal(t, "hello", first.Text)
		assert.True(t, first.Translated)
		assert.Equal(t, map[string]int{"heart": 2}, first.Reactions)

		second := resp.Messages[1]
		assert.Equal(t, "u-2", second.Key)
		assert.True(t, second.Mine)
		require.NotNil(t, second.Reply)
		assert.Equal(t, replyView{Key: "1", SenderID: "u1", Text: "안녕"}, *second.Reply)
	})
}

func TestServerWithoutSession(t *testing.T) {
	srv := New(config.Status{}, fakeSessions{}, fakeRooms{}, nil, nil)

	for _, path := range []string{"/api/v1/session", "/api/v1/timeline"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, serve(t, srv, path).Code)
		})
	}

	t.Run("Метрики не публикуются без реестра", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(t, srv, "/metrics").Code)
	})

	t.Run("Пустой список комнат", func(t *testing.T) {
		rr := serve(t, srv, "/api/v1/rooms")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"rooms":null}`, rr.Body.String())
	})
}
