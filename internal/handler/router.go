package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/callhub/internal/handler/call"
	"github.com/zhouzirui/z-tavern/callhub/internal/handler/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/handler/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/handler/stream"
	"github.com/zhouzirui/z-tavern/callhub/internal/handler/system"
	middlewarePkg "github.com/zhouzirui/z-tavern/callhub/internal/middleware"
	characterModel "github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	callService "github.com/zhouzirui/z-tavern/callhub/internal/service/call"
	chatService "github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dispatch"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Characters     characterModel.Store
	Sessions       *chatService.Service
	Dialogue       *dialogue.Service
	Calls          *callService.Service
	Hub            *dispatch.Hub
	Model          string
	AllowedOrigins []string
	WebSocket      call.Config
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(d.AllowedOrigins...))

	wsHandler := call.New(d.Calls, d.Hub, d.WebSocket)
	statusHandler := system.New(d.Model, system.Counters{
		Characters:  func() int { return len(d.Characters.List()) },
		Sessions:    d.Sessions.Count,
		ActiveCalls: d.Calls.ActiveCalls,
		Connections: d.Hub.Count,
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	wsHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		character.New(d.Characters).RegisterRoutes(api)
		chat.New(d.Sessions, d.Dialogue).RegisterRoutes(api)
		stream.New(d.Dialogue).RegisterRoutes(api)
		statusHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
