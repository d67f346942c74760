package system

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func status(t *testing.T, h *Handler) map[string]any {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/system/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatusReportsCounters(t *testing.T) {
	body := status(t, New("doubao-pro", Counters{
		Characters:  func() int { return 4 },
		Sessions:    func() int { return 2 },
		ActiveCalls: func() int { return 1 },
	}))

	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 4, body["characters"])
	require.EqualValues(t, 2, body["sessions"])
	require.EqualValues(t, 1, body["active_calls"])
	require.EqualValues(t, 0, body["connections"])
	require.Equal(t, map[string]any{"configured": true, "model": "doubao-pro"}, body["ai"])
}

func TestStatusWithoutBackend(t *testing.T) {
	body := status(t, New("", Counters{}))
	require.Equal(t, map[string]any{"configured": false}, body["ai"])
}
