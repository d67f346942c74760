package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/callhub/internal/handler/apierr"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
	chatservice "github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions *chatservice.Service
	dialogue *dialogue.Service
}

// New 创建聊天处理器
func New(sessions *chatservice.Service, dlg *dialogue.Service) *Handler {
	return &Handler{sessions: sessions, dialogue: dlg}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/messages", h.handleMessages)
	r.Delete("/sessions/{sessionID}/messages", h.handleClear)
	r.Get("/sessions/{sessionID}/export", h.handleExport)
	r.Get("/users/{userID}/sessions", h.handleListByUser)
	r.Post("/chat/send", h.handleSend)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID      string `json:"user_id"`
		CharacterID string `json:"character_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), payload.UserID, payload.CharacterID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.sessions.Transcript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleClear 清空会话，保留开场白
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Clear(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.sessions.Export(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="session-`+export.SessionID+`.json"`)
	utils.RespondJSON(w, http.StatusOK, export)
}

func (h *Handler) handleListByUser(w http.ResponseWriter, r *http.Request) {
	summaries := h.sessions.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if summaries == nil {
		summaries = []chat.Summary{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// handleSend 非流式生成一次回复
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	turn, err := h.dialogue.Begin(ctx, dialogue.Request{
		SessionID: payload.SessionID,
		Message:   payload.Message,
		Kind:      chat.KindText,
		Mode:      ai.ModeChat,
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}

	fragments, err := turn.Stream(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "chat").Str("session_id", turn.SessionID).Msg("generation failed to start")
		utils.RespondError(w, http.StatusBadGateway, "failed to generate response")
		return
	}

	text, err := ai.Collect(fragments)
	if err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("session_id", turn.SessionID).Msg("generation ended early")
		if text != "" {
			_, _ = turn.Commit(ctx, text, map[string]any{"error": err.Error()})
		}
		utils.RespondError(w, http.StatusBadGateway, "failed to generate response")
		return
	}

	reply, err := turn.Commit(ctx, text, nil)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"user_message": turn.UserMessage,
		"reply":        reply,
	})
}
