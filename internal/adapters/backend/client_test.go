package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-console/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "api-secret", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestFetchChatToken(t *testing.T) {
	t.Run("Успешный запрос", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/chat/token", r.URL.Path)
			assert.Equal(t, "Bearer api-secret", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req domain.TokenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, domain.TokenRequest{RoomType: "live", RoomID: "r1", UserID: "org_v1"}, req)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"authToken":"A1","roomToken":"R1"}`))
		})

		tokens, err := client.FetchChatToken(context.Background(), domain.TokenRequest{RoomType: "live", RoomID: "r1", UserID: "org_v1"})
		require.NoError(t, err)
		assert.Equal(t, domain.Tokens{AuthToken: "A1", RoomToken: "R1"}, tokens)
	})

	t.Run("Неожиданный статус", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "room closed", http.StatusForbidden)
		})

		_, err := client.FetchChatToken(context.Background(), domain.TokenRequest{RoomID: "r1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "room closed")
	})

	t.Run("Некорректный JSON", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{`))
		})

		_, err := client.FetchChatToken(context.Background(), domain.TokenRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode response")
	})

	t.Run("Таймаут", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		t.Cleanup(srv.Close)
		client := NewClient(srv.URL, "", WithTimeout(20*time.Millisecond))

		_, err := client.FetchChatToken(context.Background(), domain.TokenRequest{})
		assert.Error(t, err)
	})
}

func TestTranslateText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/translate", r.URL.Path)
		var req domain.TranslateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.CacheFlag)
		assert.Equal(t, "en", req.TargetLanguage)
		_, _ = w.Write([]byte(`{"translatedText":"hello","originalText":"안녕","originalLanguage":"ko"}`))
	})

	res, err := client.TranslateText(context.Background(), domain.TranslateRequest{Text: "안녕", CacheFlag: true, TargetLanguage: "en"})
	require.NoError(t, err)
	assert.Equal(t, domain.TranslateResult{TranslatedText: "hello", OriginalText: "안녕", OriginalLanguage: "ko"}, res)
}

func TestListRooms(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/chat/rooms", r.URL.Path)
		assert.Equal(t, "org", r.URL.Query().Get("organizationId"))
		assert.Equal(t, "v1", r.URL.Query().Get("venueId"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"list":[{"roomId":"r1","roomName":"Morning"},{"roomId":"r2","roomName":"Evening","venueId":"v2"}]}`))
	})

	rooms, err := client.ListRooms(context.Background(), domain.Operator{OrganizationID: "org", VenueID: "v1"})
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.Room{ID: "r1", Name: "Morning", OrganizationID: "org", VenueID: "v1"}, rooms[0])
	assert.Equal(t, "v2", rooms[1].VenueID)
}
