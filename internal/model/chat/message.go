package chat

import "time"

// SenderKind 标识消息的发送方。
type SenderKind string

const (
	SenderUser      SenderKind = "user"
	SenderCharacter SenderKind = "character"
)

// Kind 标识消息的载体类型。
type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindImage Kind = "image"
)

// Message is a single immutable turn in a session log.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Sender    SenderKind     `json:"sender"`
	Content   string         `json:"content"`
	Kind      Kind           `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewUserMessage builds an unsaved user message.
func NewUserMessage(content string, kind Kind) Message {
	if kind == "" {
		kind = KindText
	}
	return Message{Sender: SenderUser, Content: content, Kind: kind}
}

// NewCharacterMessage builds an unsaved character message.
func NewCharacterMessage(content string, metadata map[string]any) Message {
	return Message{Sender: SenderCharacter, Content: content, Kind: KindText, Metadata: metadata}
}

// Clone returns a copy whose metadata map is not shared with m.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		meta := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		m.Metadata = meta
	}
	return m
}
