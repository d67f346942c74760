package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
)

var (
	ErrUserRequired      = errors.New("user id is required")
	ErrCharacterRequired = errors.New("character id is required")
	ErrCharacterNotFound = errors.New("character not found")
	ErrSessionNotFound   = errors.New("session not found")
)

// metaGreeting marks the opening message so Clear can keep it.
const metaGreeting = "greeting"

type sessionEntry struct {
	mu       sync.Mutex
	session  chat.Session
	messages []chat.Message
}

func (e *sessionEntry) snapshot() chat.Session {
	out := e.session
	out.Messages = cloneMessages(e.messages)
	return out
}

// Service encapsulates conversation state management.
type Service struct {
	characters character.Store
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewService bootstraps the in-memory session store.
func NewService(characters character.Store) *Service {
	return &Service{
		characters: characters,
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   make(map[string]*sessionEntry),
	}
}

// CreateSession provisions a session and seeds it with the character's greeting.
func (s *Service) CreateSession(_ context.Context, userID, characterID string) (chat.Session, error) {
	userID = strings.TrimSpace(userID)
	characterID = strings.TrimSpace(characterID)
	if userID == "" {
		return chat.Session{}, ErrUserRequired
	}
	if characterID == "" {
		return chat.Session{}, ErrCharacterRequired
	}

	char, ok := s.characters.FindByID(characterID)
	if !ok {
		return chat.Session{}, ErrCharacterNotFound
	}

	now := s.now()
	entry := &sessionEntry{
		session: chat.Session{
			ID:          uuid.NewString(),
			UserID:      userID,
			CharacterID: characterID,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		messages: make([]chat.Message, 0, 16),
	}

	greeting := chat.NewCharacterMessage(char.Greeting, map[string]any{
		"ai_generated": false,
		metaGreeting:   true,
	})
	entry.append(greeting, now)

	s.mu.Lock()
	s.sessions[entry.session.ID] = entry
	s.mu.Unlock()

	return entry.snapshot(), nil
}

// AppendMessage stores msg at the end of the session log and returns it with id and timestamp assigned.
func (s *Service) AppendMessage(_ context.Context, sessionID string, msg chat.Message) (chat.Message, error) {
	entry, ok := s.lookup(sessionID)
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.append(msg, s.now()).Clone(), nil
}

// append must be called with e.mu held, or before e is published.
func (e *sessionEntry) append(msg chat.Message, now time.Time) chat.Message {
	msg = msg.Clone()
	msg.ID = uuid.NewString()
	msg.SessionID = e.session.ID
	if msg.Kind == "" {
		msg.Kind = chat.KindText
	}
	if n := len(e.messages); n > 0 && now.Before(e.messages[n-1].CreatedAt) {
		now = e.messages[n-1].CreatedAt
	}
	msg.CreatedAt = now

	e.messages = append(e.messages, msg)
	e.session.UpdatedAt = now
	return msg
}

// Context returns the most recent limit messages, oldest first. limit <= 0 returns everything.
func (s *Service) Context(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	entry, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	messages := entry.messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return cloneMessages(messages), nil
}

// GetSession retrieves a session by identifier, including its messages.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	entry, ok := s.lookup(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshot(), nil
}

// Transcript returns every stored message for the session.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.Context(ctx, sessionID, 0)
}

// ListByUser summarizes the user's sessions, most recently updated first.
func (s *Service) ListByUser(_ context.Context, userID string) []chat.Summary {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var out []chat.Summary
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.session.UserID == userID {
			sess := entry.session
			sess.Messages = entry.messages
			out = append(out, sess.Summarize())
		}
		entry.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Clear drops the conversation while keeping the greeting.
func (s *Service) Clear(_ context.Context, sessionID string) (chat.Session, error) {
	entry, ok := s.lookup(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	kept := make([]chat.Message, 0, 16)
	for _, msg := range entry.messages {
		if greeting, _ := msg.Metadata[metaGreeting].(bool); greeting {
			kept = append(kept, msg)
		}
	}
	entry.messages = kept
	entry.session.UpdatedAt = s.now()
	return entry.snapshot(), nil
}

// Export is the downloadable form of a session.
type Export struct {
	SessionID     string         `json:"sessionId"`
	UserID        string         `json:"userId"`
	CharacterID   string         `json:"characterId"`
	CharacterName string         `json:"characterName,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	ExportedAt    time.Time      `json:"exportedAt"`
	Messages      []chat.Message `json:"messages"`
}

// Export assembles the full history of a session for download.
func (s *Service) Export(ctx context.Context, sessionID string) (Export, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Export{}, err
	}

	out := Export{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		CharacterID: sess.CharacterID,
		CreatedAt:   sess.CreatedAt,
		ExportedAt:  s.now(),
		Messages:    sess.Messages,
	}
	if char, ok := s.characters.FindByID(sess.CharacterID); ok {
		out.CharacterName = char.Name
	}
	return out, nil
}

// Count reports how many sessions are held.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) lookup(sessionID string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	return entry, ok
}

func cloneMessages(in []chat.Message) []chat.Message {
	out := make([]chat.Message, len(in))
	for i, msg := range in {
		out[i] = msg.Clone()
	}
	return out
}
