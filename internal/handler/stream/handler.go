package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/callhub/internal/handler/apierr"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/pkg/utils"
)

// Handler streams typed chat replies via Server-Sent Events.
type Handler struct {
	dialogue *dialogue.Service
}

// New creates a new stream handler
func New(dlg *dialogue.Service) *Handler {
	return &Handler{dialogue: dlg}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes 注册流式对话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handlePost)
	r.Get("/stream/{sessionID}", h.handleGet)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serve(w, r, payload.SessionID, payload.Message)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "sessionID"), r.URL.Query().Get("message"))
}

// serve validates and stores the user turn before any SSE header is written, so request errors
// still get a plain JSON status.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, sessionID, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	turn, err := h.dialogue.Begin(ctx, dialogue.Request{
		SessionID: sessionID,
		Message:   message,
		Kind:      chat.KindText,
		Mode:      ai.ModeChat,
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	text, err := h.relay(ctx, w, flusher, turn)
	logger := log.With().Str("component", "stream").Str("session_id", turn.SessionID).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("stream ended early")
		if strings.TrimSpace(text) != "" {
			if _, commitErr := turn.Commit(context.Background(), text, map[string]any{"error": err.Error(), "streamed": true}); commitErr != nil {
				logger.Error().Err(commitErr).Msg("failed to store partial reply")
			}
		}
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: turn.SessionID, Error: "failed to generate response"})
		return
	}

	reply, err := turn.Commit(context.Background(), text, map[string]any{"streamed": true})
	if err != nil {
		logger.Error().Err(err).Msg("failed to store reply")
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: turn.SessionID, Error: "failed to store response"})
		return
	}
	h.send(w, flusher, StreamResponse{Event: "done", SessionID: turn.SessionID, MessageID: reply.ID})
	logger.Debug().Int("length", len(text)).Msg("stream completed")
}

// relay forwards fragments as chunk events and returns the text delivered so far.
func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, turn *dialogue.Turn) (string, error) {
	fragments, err := turn.Stream(ctx)
	if err != nil {
		return "", err
	}
	defer fragments.Close()

	var b strings.Builder
	for {
		fragment, err := fragments.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
		if sendErr := h.send(w, flusher, StreamResponse{Event: "chunk", SessionID: turn.SessionID, Content: fragment}); sendErr != nil {
			return b.String(), sendErr
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) error {
	return utils.SendSSEChunk(w, flusher, response)
}
