// Package dialogue runs one conversational turn: validation, history, user message, backend
// stream and persistence of the character's reply. Both the typed chat path and voice calls use it.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
)

var (
	ErrEmptyMessage       = errors.New("message is required")
	ErrMessageTooLong     = errors.New("message too long")
	ErrCharacterNotFound  = errors.New("character not found")
	ErrBackendUnavailable = errors.New("generation backend unavailable")
)

// Sessions is the slice of the session store a turn needs.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	Context(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	AppendMessage(ctx context.Context, sessionID string, msg chat.Message) (chat.Message, error)
}

// Config bounds what a turn may send to the backend.
type Config struct {
	ContextLimit     int
	MaxMessageLength int
}

// Service prepares and records turns.
type Service struct {
	sessions   Sessions
	characters character.Store
	backend    ai.Backend
	cfg        Config
}

// NewService wires a dialogue service. backend may be nil when no model is configured.
func NewService(sessions Sessions, characters character.Store, backend ai.Backend, cfg Config) *Service {
	return &Service{sessions: sessions, characters: characters, backend: backend, cfg: cfg}
}

// Available reports whether a generation backend is configured.
func (s *Service) Available() bool {
	return s.backend != nil
}

// Request describes one user turn.
type Request struct {
	SessionID string
	// CharacterID overrides the session's character when set.
	CharacterID string
	Message     string
	Kind        chat.Kind
	Mode        ai.Mode
}

// Turn is a user message that has been stored and is waiting for the character's reply.
type Turn struct {
	svc *Service

	SessionID   string
	Character   character.Character
	Message     string
	History     []chat.Message
	Mode        ai.Mode
	UserMessage chat.Message
}

// Begin validates req, snapshots the bounded history and stores the user message.
func (s *Service) Begin(ctx context.Context, req Request) (*Turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return nil, fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, s.cfg.MaxMessageLength)
	}
	if s.backend == nil {
		return nil, ErrBackendUnavailable
	}

	session, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	characterID := req.CharacterID
	if characterID == "" {
		characterID = session.CharacterID
	}
	char, ok := s.characters.FindByID(characterID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCharacterNotFound, characterID)
	}

	history, err := s.sessions.Context(ctx, session.ID, s.cfg.ContextLimit)
	if err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = chat.KindText
	}
	stored, err := s.sessions.AppendMessage(ctx, session.ID, chat.NewUserMessage(message, kind))
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = ai.ModeChat
	}

	return &Turn{
		svc:         s,
		SessionID:   session.ID,
		Character:   char,
		Message:     message,
		History:     history,
		Mode:        mode,
		UserMessage: stored,
	}, nil
}

// Stream starts the backend generation for the turn.
func (t *Turn) Stream(ctx context.Context) (ai.Fragments, error) {
	return t.svc.backend.Stream(ctx, &t.Character, t.Message, t.History, t.Mode)
}

// Commit stores text as the character's reply. extra is merged over the default metadata.
func (t *Turn) Commit(ctx context.Context, text string, extra map[string]any) (chat.Message, error) {
	meta := map[string]any{
		"ai_generated": true,
		"mode":         string(t.Mode),
	}
	if named, ok := t.svc.backend.(interface{ ModelName() string }); ok {
		meta["model"] = named.ModelName()
	}
	for k, v := range extra {
		meta[k] = v
	}
	return t.svc.sessions.AppendMessage(ctx, t.SessionID, chat.NewCharacterMessage(text, meta))
}
