// Package call exposes voice calls over a websocket.
package call

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	callservice "github.com/zhouzirui/z-tavern/callhub/internal/service/call"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dispatch"
)

const maxMessageBytes = 64 << 10

// Inbound message types.
const (
	MsgStartCall    = "start_voice_call"
	MsgEndCall      = "end_voice_call"
	MsgVoiceStream  = "voice_stream"
	MsgInterrupt    = "interrupt_ai_response"
	MsgUpdateStatus = "update_call_status"
)

// Config tunes the read side of each connection.
type Config struct {
	ReadTimeout time.Duration
}

// Handler upgrades requests and feeds client messages to the call service.
type Handler struct {
	calls    *callservice.Service
	hub      *dispatch.Hub
	cfg      Config
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(calls *callservice.Service, hub *dispatch.Hub, cfg Config) *Handler {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &Handler{
		calls: calls,
		hub:   hub,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin checks are left to the CORS layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.ServeHTTP)
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type startPayload struct {
	SessionID   string `json:"session_id"`
	CharacterID string `json:"character_id"`
}

type streamPayload struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

type statusPayload struct {
	Status string `json:"status"`
}

// ServeHTTP upgrades the connection and runs its read loop until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "ws").Msg("upgrade failed")
		return
	}

	connID := uuid.NewString()
	logger := log.With().Str("component", "ws").Str("conn_id", connID).Logger()

	h.hub.Register(connID, conn)
	h.calls.Connect(connID)
	logger.Info().Str("remote", r.RemoteAddr).Msg("connection opened")

	defer func() {
		h.calls.Disconnect(connID)
		h.hub.Unregister(connID)
		logger.Info().Msg("connection closed")
	}()

	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.SendToConnection(connID, dispatch.ErrorEvent("invalid message format"))
			continue
		}
		h.handle(connID, msg)
	}
}

func (h *Handler) handle(connID string, msg inbound) {
	switch msg.Type {
	case MsgStartCall:
		var p startPayload
		if !h.decode(connID, msg.Data, &p) {
			return
		}
		_, _ = h.calls.StartCall(connID, p.SessionID, p.CharacterID)

	case MsgEndCall:
		h.calls.EndCall(connID)

	case MsgVoiceStream:
		var p streamPayload
		if !h.decode(connID, msg.Data, &p) {
			return
		}
		if err := h.calls.VoiceStream(connID, p.Transcript, p.IsFinal); err != nil && !errors.Is(err, callservice.ErrCallNotFound) {
			log.Warn().Err(err).Str("component", "ws").Str("conn_id", connID).Msg("voice stream rejected")
		}

	case MsgInterrupt:
		h.calls.Interrupt(connID)

	case MsgUpdateStatus:
		var p statusPayload
		if !h.decode(connID, msg.Data, &p) {
			return
		}
		h.calls.UpdateStatus(connID, p.Status)

	default:
		h.hub.SendToConnection(connID, dispatch.ErrorEvent("unsupported message type"))
	}
}

func (h *Handler) decode(connID string, data json.RawMessage, dst any) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, dst); err != nil {
		h.hub.SendToConnection(connID, dispatch.ErrorEvent("invalid message data"))
		return false
	}
	return true
}
