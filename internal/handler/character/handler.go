package character

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/voice"
	"github.com/zhouzirui/z-tavern/callhub/pkg/utils"
)

// Handler 角色目录的HTTP处理器
type Handler struct {
	store character.Store
}

// New 创建角色处理器
func New(store character.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册角色相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleList)
	r.Get("/characters/search", h.handleSearch)
	r.Get("/characters/categories", h.handleCategories)
	r.Get("/characters/{characterID}", h.handleGet)
	r.Get("/characters/{characterID}/voice", h.handleVoice)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items := h.store.List()
	if category := r.URL.Query().Get("category"); category != "" {
		items = h.store.Search("", category)
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"characters": nonNil(items)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := h.store.Search(q.Get("q"), q.Get("category"))
	utils.RespondJSON(w, http.StatusOK, map[string]any{"characters": nonNil(items)})
}

func (h *Handler) handleCategories(w http.ResponseWriter, _ *http.Request) {
	categories := h.store.Categories()
	if categories == nil {
		categories = []string{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.store.FindByID(chi.URLParam(r, "characterID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	c, ok := h.store.FindByID(chi.URLParam(r, "characterID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, voice.ForCharacter(&c))
}

func nonNil(items []character.Character) []character.Character {
	if items == nil {
		return []character.Character{}
	}
	return items
}
