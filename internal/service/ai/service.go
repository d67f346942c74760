package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern/callhub/internal/config"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
)

// Mode selects the generation parameters for a request.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeVoiceCall Mode = "voice_call"
)

// Fragments is a lazy, finite sequence of generated text. Recv returns io.EOF after the last
// fragment, or a terminal error after zero or more fragments.
type Fragments interface {
	Recv() (string, error)
	Close()
}

// Backend produces fragment streams for a character reply.
type Backend interface {
	Stream(ctx context.Context, c *character.Character, message string, history []chat.Message, mode Mode) (Fragments, error)
}

type pipeline struct {
	params config.GenerationParams
	chain  compose.Runnable[map[string]any, *schema.Message]
}

// Service runs one eino chain per generation mode over Ark chat models.
type Service struct {
	cfg       config.AIConfig
	pipelines map[Mode]*pipeline
}

// NewService creates the chat and voice-call chains.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	svc := &Service{cfg: cfg, pipelines: make(map[Mode]*pipeline, 2)}

	for mode, params := range map[Mode]config.GenerationParams{
		ModeChat:      cfg.Chat,
		ModeVoiceCall: cfg.VoiceCall,
	} {
		chatModel, err := cfg.NewChatModel(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s chat model: %w", mode, err)
		}
		chain, err := compileChain(ctx, chatModel)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s chain: %w", mode, err)
		}
		svc.pipelines[mode] = &pipeline{params: params, chain: chain}
	}

	return svc, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// ModelName reports the configured Ark model.
func (s *Service) ModelName() string {
	return s.cfg.Model
}

// Stream starts a streaming generation for the user's message.
func (s *Service) Stream(ctx context.Context, c *character.Character, message string, history []chat.Message, mode Mode) (Fragments, error) {
	p, err := s.pipeline(mode)
	if err != nil {
		return nil, err
	}

	reader, err := p.chain.Stream(ctx, buildChainInput(c, message, history, mode), temperatureOption(p.params, c))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return &messageFragments{reader: reader}, nil
}

// Generate runs a non-streaming generation and returns the full reply.
func (s *Service) Generate(ctx context.Context, c *character.Character, message string, history []chat.Message, mode Mode) (string, error) {
	p, err := s.pipeline(mode)
	if err != nil {
		return "", err
	}

	response, err := p.chain.Invoke(ctx, buildChainInput(c, message, history, mode), temperatureOption(p.params, c))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Debug().Str("component", "ai").Str("character", c.ID).Str("mode", string(mode)).Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

func (s *Service) pipeline(mode Mode) (*pipeline, error) {
	p, ok := s.pipelines[mode]
	if !ok {
		return nil, fmt.Errorf("unsupported generation mode %q", mode)
	}
	return p, nil
}

func temperatureOption(params config.GenerationParams, c *character.Character) compose.Option {
	return compose.WithChatModelOption(model.WithTemperature(float32(Temperature(params.Temperature, c))))
}

// Temperature applies the character's modifier to base, clamped to [0, 1].
func Temperature(base float64, c *character.Character) float64 {
	t := base
	if c != nil {
		t += c.TemperatureModifier
	}
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}

func buildChainInput(c *character.Character, message string, history []chat.Message, mode Mode) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(c, mode),
		"history": buildHistoryMessages(history),
		"query":   message,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderCharacter:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// messageFragments adapts an eino message stream to Fragments, skipping empty deltas.
type messageFragments struct {
	reader *schema.StreamReader[*schema.Message]
}

func (f *messageFragments) Recv() (string, error) {
	for {
		msg, err := f.reader.Recv()
		if err != nil {
			return "", err
		}
		if msg != nil && msg.Content != "" {
			return msg.Content, nil
		}
	}
}

func (f *messageFragments) Close() {
	f.reader.Close()
}

// Collect drains f into one string. Text received before a failure is returned with the error.
func Collect(f Fragments) (string, error) {
	defer f.Close()

	var out []byte
	for {
		fragment, err := f.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, fragment...)
	}
}
