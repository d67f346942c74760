package chat

import "time"

// Session is a conversation thread between one user and one character.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	CharacterID string    `json:"characterId"`
	Messages    []Message `json:"messages,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary 用于会话列表展示。
type Summary struct {
	ID           string    `json:"id"`
	CharacterID  string    `json:"characterId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastMessage  string    `json:"lastMessage,omitempty"`
	MessageCount int       `json:"messageCount"`
}

const previewRunes = 50

// Summarize builds the list view of s.
func (s Session) Summarize() Summary {
	summary := Summary{
		ID:           s.ID,
		CharacterID:  s.CharacterID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
	}
	if n := len(s.Messages); n > 0 {
		summary.LastMessage = preview(s.Messages[n-1].Content)
	}
	return summary
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}
