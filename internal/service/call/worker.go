package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
	chatservice "github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dispatch"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/segment"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/voice"
)

type recvResult struct {
	text string
	err  error
}

// reply is the state of one generation as it is delivered.
type reply struct {
	connID     string
	transcript string
	seg        *segment.Segmenter
	text       strings.Builder
}

func (s *Service) runWorker(gen Generation, transcript string) {
	connID := gen.Record.ConnID
	logger := log.With().Str("component", "call").Str("conn_id", connID).Uint64("generation", gen.Token).Logger()

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("call worker panicked")
			if gen.Ctx.Err() == nil {
				s.sendError(connID, "failed to generate response")
			}
		}
		if !s.registry.FinishGeneration(connID, gen.Token) {
			logger.Debug().Msg("call gone before reply finished")
		}
	}()

	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventTranscriptConfirm, map[string]any{
		"transcript": transcript,
	}))

	turn, err := s.dialogue.Begin(gen.Ctx, dialogue.Request{
		SessionID:   gen.Record.SessionID,
		CharacterID: gen.Record.CharacterID,
		Message:     transcript,
		Kind:        chat.KindVoice,
		Mode:        ai.ModeVoiceCall,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("could not start reply")
		if gen.Ctx.Err() == nil {
			s.sendError(connID, clientMessage(err))
		}
		return
	}

	r := &reply{connID: connID, transcript: transcript, seg: segment.New()}
	streamErr := s.stream(gen, turn, r)

	// The call's own context decides whether the outcome is a cancellation.
	if cause := context.Cause(gen.Ctx); gen.Ctx.Err() != nil {
		s.finishCanceled(turn, r, cause, logger)
		return
	}

	if streamErr != nil {
		s.deliverRemainder(gen.Ctx, r)
		logger.Warn().Err(streamErr).Int("sentences", r.seg.Emitted()).Msg("reply failed upstream")
		s.persist(turn, r, map[string]any{"error": streamErr.Error()}, logger)
		s.sendError(connID, clientMessage(fmt.Errorf("%w: %w", ErrUpstream, streamErr)))
		return
	}

	s.deliverRemainder(gen.Ctx, r)
	if gen.Ctx.Err() != nil {
		s.finishCanceled(turn, r, context.Cause(gen.Ctx), logger)
		return
	}

	text := r.text.String()
	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventResponseComplete, map[string]any{
		"text":            text,
		"transcript":      transcript,
		"total_sentences": r.seg.Emitted(),
	}))
	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventVoiceConfig,
		voice.ForReply(&turn.Character, transcript, text)))

	s.persist(turn, r, nil, logger)
	logger.Info().Int("sentences", r.seg.Emitted()).Int("length", len(text)).Msg("reply delivered")
}

// stream pumps fragments through the segmenter until the backend finishes, fails, times out
// or the call's context is cancelled.
func (s *Service) stream(gen Generation, turn *dialogue.Turn, r *reply) error {
	ctx, cancel := context.WithTimeoutCause(gen.Ctx, s.cfg.GenerationTimeout, ErrGenerationTimeout)
	defer cancel()

	fragments, err := turn.Stream(ctx)
	if err != nil {
		return err
	}

	results := make(chan recvResult)
	go func() {
		defer close(results)
		defer fragments.Close()
		for {
			text, err := fragments.Recv()
			select {
			case results <- recvResult{text: text, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	firstFragment := newStoppableTimer(s.cfg.FirstFragmentTimeout)
	defer firstFragment.stop()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-firstFragment.C:
			return ErrFirstFragmentTimeout
		case res, ok := <-results:
			if !ok {
				return context.Cause(ctx)
			}
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			if res.err != nil {
				return res.err
			}
			firstFragment.stop()
			for _, unit := range r.seg.Push(res.text) {
				if gen.Ctx.Err() != nil {
					return context.Cause(gen.Ctx)
				}
				s.deliver(r, unit)
			}
		}
	}
}

func (s *Service) deliver(r *reply, unit segment.Unit) {
	r.text.WriteString(unit.Text)
	s.dispatcher.SendToConnection(r.connID, dispatch.NewEvent(dispatch.EventSentenceReady, map[string]any{
		"sentence":        unit.Text,
		"sentence_number": unit.Seq,
		"is_final":        unit.IsFinal,
	}))
	s.dispatcher.SendToConnection(r.connID, dispatch.NewEvent(dispatch.EventResponseChunk, map[string]any{
		"chunk":       unit.Text,
		"is_complete": unit.IsFinal,
	}))
}

func (s *Service) deliverRemainder(ctx context.Context, r *reply) {
	if ctx.Err() != nil {
		return
	}
	if unit, ok := r.seg.Flush(); ok {
		s.deliver(r, unit)
	}
}

// finishCanceled records what was already spoken. Only an interrupt is acknowledged to the
// client; an ended call or shutdown has nobody left to tell.
func (s *Service) finishCanceled(turn *dialogue.Turn, r *reply, cause error, logger zerolog.Logger) {
	logger.Info().AnErr("cause", cause).Int("sentences", r.seg.Emitted()).Msg("reply cancelled")
	s.persist(turn, r, map[string]any{"interrupted": true}, logger)

	if !errors.Is(cause, ErrInterrupted) {
		return
	}
	s.dispatcher.SendToConnection(r.connID, dispatch.NewEvent(dispatch.EventResponseComplete, map[string]any{
		"text":            r.text.String(),
		"transcript":      r.transcript,
		"total_sentences": r.seg.Emitted(),
		"interrupted":     true,
	}))
}

func (s *Service) persist(turn *dialogue.Turn, r *reply, extra map[string]any, logger zerolog.Logger) {
	text := r.text.String()
	if text == "" {
		return
	}
	meta := map[string]any{"streamed": true, "sentences": r.seg.Emitted()}
	for k, v := range extra {
		meta[k] = v
	}
	// The reply outlives the call's context, so it is stored with a fresh one.
	if _, err := turn.Commit(context.Background(), text, meta); err != nil {
		logger.Warn().Err(err).Msg("could not store reply")
	}
}

// clientMessage converts err into the message shown to the caller.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, dialogue.ErrCharacterNotFound):
		return "character not found"
	case errors.Is(err, dialogue.ErrMessageTooLong):
		return "message too long"
	case errors.Is(err, dialogue.ErrBackendUnavailable):
		return "AI service unavailable"
	case errors.Is(err, ErrGenerationTimeout), errors.Is(err, ErrFirstFragmentTimeout):
		return "AI response timed out"
	default:
		return "failed to generate response"
	}
}

// stoppableTimer is a timer whose channel goes nil once stopped, so a select on it blocks forever.
type stoppableTimer struct {
	t *time.Timer
	C <-chan time.Time
}

func newStoppableTimer(d time.Duration) *stoppableTimer {
	t := time.NewTimer(d)
	return &stoppableTimer{t: t, C: t.C}
}

func (s *stoppableTimer) stop() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
		s.C = nil
	}
}
