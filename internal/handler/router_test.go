package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai/aitest"
	callService "github.com/zhouzirui/z-tavern/callhub/internal/service/call"
	chatService "github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dispatch"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := character.NewMemoryStore(character.Seed())
	sessions := chatService.NewService(store)
	dlg := dialogue.NewService(sessions, store, &aitest.Backend{}, dialogue.Config{ContextLimit: 20})
	hub := dispatch.NewHub(dispatch.Config{})
	calls := callService.NewService(hub, dlg, callService.Config{})
	t.Cleanup(func() {
		_ = calls.Shutdown(context.Background())
		hub.Close()
	})

	return NewRouter(Deps{
		Characters:     store,
		Sessions:       sessions,
		Dialogue:       dlg,
		Calls:          calls,
		Hub:            hub,
		Model:          "test-model",
		AllowedOrigins: []string{"*"},
	})
}

func TestRoutesMounted(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/characters", "/api/characters/categories", "/api/system/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebSocketOnBothPaths(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	defer srv.Close()

	for _, path := range []string{"/ws", "/api/ws"} {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
		require.NoError(t, err, path)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var ev dispatch.Event
		require.NoError(t, conn.ReadJSON(&ev), path)
		require.Equal(t, dispatch.EventConnected, ev.Type)
		require.NoError(t, conn.Close())
	}
}
