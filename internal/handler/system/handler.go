// Package system reports process status.
package system

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/callhub/pkg/utils"
)

// Counters are the live numbers the status endpoint reports.
type Counters struct {
	Characters  func() int
	Sessions    func() int
	ActiveCalls func() int
	Connections func() int
}

// Handler serves the status endpoint.
type Handler struct {
	model    string
	counters Counters
	started  time.Time
}

// New creates the handler. An empty model means no generation backend is configured.
func New(model string, counters Counters) *Handler {
	return &Handler{model: model, counters: counters, started: time.Now()}
}

// RegisterRoutes mounts the status route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/system/status", h.handleStatus)
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	ai := map[string]any{"configured": h.model != ""}
	if h.model != "" {
		ai["model"] = h.model
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"ai":             ai,
		"characters":     count(h.counters.Characters),
		"sessions":       count(h.counters.Sessions),
		"active_calls":   count(h.counters.ActiveCalls),
		"connections":    count(h.counters.Connections),
	})
}

func count(fn func() int) int {
	if fn == nil {
		return 0
	}
	return fn()
}
