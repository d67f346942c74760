// Package aitest provides a scripted generation backend for tests.
package aitest

import (
	"context"
	"io"
	"sync"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
)

// Call records one Stream invocation.
type Call struct {
	CharacterID string
	Message     string
	History     []chat.Message
	Mode        ai.Mode
}

// Backend replays Fragments and then Err (io.EOF when nil). When Gate is set, each fragment
// waits for a value on it, so tests can step the stream.
type Backend struct {
	Fragments []string
	Err       error
	StreamErr error
	Gate      chan struct{}

	mu    sync.Mutex
	calls []Call
}

// Stream implements ai.Backend.
func (b *Backend) Stream(ctx context.Context, c *character.Character, message string, history []chat.Message, mode ai.Mode) (ai.Fragments, error) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{CharacterID: c.ID, Message: message, History: history, Mode: mode})
	b.mu.Unlock()

	if b.StreamErr != nil {
		return nil, b.StreamErr
	}
	return &fragments{ctx: ctx, items: append([]string(nil), b.Fragments...), err: b.Err, gate: b.Gate}, nil
}

// Calls returns the recorded invocations.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

type fragments struct {
	ctx   context.Context
	items []string
	err   error
	gate  chan struct{}
}

func (f *fragments) Recv() (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.ctx.Done():
			return "", f.ctx.Err()
		}
	}
	if len(f.items) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	next := f.items[0]
	f.items = f.items[1:]
	return next, nil
}

func (f *fragments) Close() {}
