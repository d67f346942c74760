package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
)

func setupRouter(backend ai.Backend) (*chi.Mux, *chatservice.Service) {
	store := character.NewMemoryStore(character.Seed())
	sessions := chatservice.NewService(store)
	dlg := dialogue.NewService(sessions, store, backend, dialogue.Config{ContextLimit: 20, MaxMessageLength: 10})

	r := chi.NewRouter()
	New(sessions, dlg).RegisterRoutes(r)
	return r, sessions
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) chat.Session {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/sessions", map[string]string{"user_id": "u1", "character_id": "confucius"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session chat.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter(nil)

	session := createSession(t, r)
	require.NotEmpty(t, session.ID)
	require.Len(t, session.Messages, 1)
	require.Equal(t, chat.SenderCharacter, session.Messages[0].Sender)

	rec := do(t, r, http.MethodPost, "/sessions", map[string]string{"user_id": "u1", "character_id": "nobody"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/sessions", map[string]string{"character_id": "confucius"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionAndMessages(t *testing.T) {
	r, _ := setupRouter(nil)
	session := createSession(t, r)

	rec := do(t, r, http.MethodGet, "/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/sessions/"+session.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)

	rec = do(t, r, http.MethodGet, "/sessions/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendStoresReply(t *testing.T) {
	r, sessions := setupRouter(&aitest.Backend{Fragments: []string{"学而", "时习之。"}})
	session := createSession(t, r)

	rec := do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": session.ID, "message": "请教"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reply chat.Message `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "学而时习之。", body.Reply.Content)

	transcript, err := sessions.Transcript(t.Context(), session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	require.Equal(t, chat.SenderUser, transcript[1].Sender)
}

func TestSendErrors(t *testing.T) {
	r, _ := setupRouter(nil)
	session := createSession(t, r)

	rec := do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": session.ID, "message": "hi"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	r, _ = setupRouter(&aitest.Backend{})
	session = createSession(t, r)

	rec = do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": session.ID, "message": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": session.ID, "message": "这句话明显超过了十个字的限制"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": "missing", "message": "hi"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendUpstreamFailureKeepsPartialReply(t *testing.T) {
	r, sessions := setupRouter(&aitest.Backend{Fragments: []string{"一半"}, Err: errors.New("upstream reset")})
	session := createSession(t, r)

	rec := do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": session.ID, "message": "hi"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	transcript, err := sessions.Transcript(t.Context(), session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	require.Equal(t, "一半", transcript[2].Content)
	require.Equal(t, "upstream reset", transcript[2].Metadata["error"])
}

func TestClearExportAndList(t *testing.T) {
	r, _ := setupRouter(&aitest.Backend{Fragments: []string{"好。"}})
	session := createSession(t, r)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/chat/send", map[string]string{"session_id": session.ID, "message": "hi"}).Code)

	rec := do(t, r, http.MethodGet, "/sessions/"+session.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), session.ID)
	var export chatservice.Export
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	require.Equal(t, "孔子", export.CharacterName)
	require.Len(t, export.Messages, 3)

	rec = do(t, r, http.MethodDelete, "/sessions/"+session.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared chat.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	require.Len(t, cleared.Messages, 1)

	rec = do(t, r, http.MethodGet, "/users/u1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []chat.Summary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	require.Equal(t, 1, list.Sessions[0].MessageCount)

	rec = do(t, r, http.MethodGet, "/users/nobody/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sessions":[]}`, rec.Body.String())
}
