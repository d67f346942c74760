// Package call drives voice calls: lifecycle over a persistent connection, one generation
// worker per call, and sentence-level delivery of the reply.
package call

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dispatch"
)

// Dispatcher delivers events to connections and rooms.
type Dispatcher interface {
	SendToConnection(connID string, ev dispatch.Event) bool
	BroadcastToRoom(room string, ev dispatch.Event) int
	Join(room, connID string) bool
	Leave(room, connID string) bool
}

// Dialogue starts conversational turns.
type Dialogue interface {
	Begin(ctx context.Context, req dialogue.Request) (*dialogue.Turn, error)
}

// Config bounds each generation.
type Config struct {
	GenerationTimeout    time.Duration
	FirstFragmentTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	if c.FirstFragmentTimeout <= 0 {
		c.FirstFragmentTimeout = 10 * time.Second
	}
	return c
}

// Service is the call state machine. All call state lives in its Registry.
type Service struct {
	registry   *Registry
	dispatcher Dispatcher
	dialogue   Dialogue
	cfg        Config
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
}

// NewService wires the call state machine.
func NewService(dispatcher Dispatcher, dlg Dialogue, cfg Config) *Service {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Service{
		registry:   NewRegistry(),
		dispatcher: dispatcher,
		dialogue:   dlg,
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RoomFor derives the broadcast room of a call.
func RoomFor(sessionID, connID string) string {
	return fmt.Sprintf("call_%s_%s", sessionID, connID)
}

// Connect acknowledges a new connection.
func (s *Service) Connect(connID string) {
	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventConnected, map[string]any{
		"conn_id": connID,
	}))
}

// StartCall opens a call for the connection and joins it to the call's room.
func (s *Service) StartCall(connID, sessionID, characterID string) (Record, error) {
	sessionID = strings.TrimSpace(sessionID)
	characterID = strings.TrimSpace(characterID)
	if sessionID == "" || characterID == "" {
		s.sendError(connID, "session_id and character_id are required")
		return Record{}, fmt.Errorf("%w: session_id and character_id are required", ErrValidation)
	}

	rec := Record{
		ConnID:      connID,
		SessionID:   sessionID,
		CharacterID: characterID,
		Room:        RoomFor(sessionID, connID),
		State:       StateInCall,
		StartedAt:   s.now(),
		Status:      "active",
	}
	if err := s.registry.InsertIfAbsent(rec); err != nil {
		s.sendError(connID, err.Error())
		return Record{}, err
	}
	s.dispatcher.Join(rec.Room, connID)

	log.Info().Str("component", "call").Str("conn_id", connID).Str("session_id", sessionID).Str("character_id", characterID).Msg("call started")
	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventCallStarted, map[string]any{
		"room":         rec.Room,
		"status":       "active",
		"session_id":   sessionID,
		"character_id": characterID,
	}))
	return rec, nil
}

// EndCall closes the connection's call. Calling it without an active call does nothing.
func (s *Service) EndCall(connID string) (time.Duration, bool) {
	rec, ok := s.registry.Remove(connID)
	if !ok {
		return 0, false
	}
	s.dispatcher.Leave(rec.Room, connID)

	duration := s.now().Sub(rec.StartedAt)
	log.Info().Str("component", "call").Str("conn_id", connID).Dur("duration", duration).Msg("call ended")
	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventCallEnded, map[string]any{
		"duration": seconds(duration),
		"status":   "ended",
	}))
	return duration, true
}

// Disconnect cleans up after a lost connection and tells the rest of the room.
func (s *Service) Disconnect(connID string) {
	rec, ok := s.registry.Remove(connID)
	if !ok {
		return
	}

	duration := s.now().Sub(rec.StartedAt)
	s.dispatcher.BroadcastToRoom(rec.Room, dispatch.NewEvent(dispatch.EventCallEnded, map[string]any{
		"duration": seconds(duration),
		"reason":   "disconnect",
	}))
	s.dispatcher.Leave(rec.Room, connID)
	log.Info().Str("component", "call").Str("conn_id", connID).Dur("duration", duration).Msg("call dropped on disconnect")
}

// VoiceStream relays a live transcript to the room. A final, non-empty transcript starts a
// reply unless one is already being generated.
func (s *Service) VoiceStream(connID, transcript string, isFinal bool) error {
	rec, ok := s.registry.Get(connID)
	if !ok {
		s.sendError(connID, ErrCallNotFound.Error())
		return ErrCallNotFound
	}

	s.dispatcher.BroadcastToRoom(rec.Room, dispatch.NewEvent(dispatch.EventVoiceTranscript, map[string]any{
		"transcript": transcript,
		"is_final":   isFinal,
	}))

	transcript = strings.TrimSpace(transcript)
	if !isFinal || transcript == "" {
		return nil
	}

	gen, err := s.registry.BeginGeneration(s.ctx, connID)
	switch {
	case errors.Is(err, ErrBusy):
		log.Debug().Str("component", "call").Str("conn_id", connID).Msg("final transcript ignored, reply in progress")
		return nil
	case err != nil:
		return err
	}

	s.dispatcher.BroadcastToRoom(gen.Record.Room, dispatch.NewEvent(dispatch.EventProcessing, map[string]any{
		"status": "thinking",
	}))

	s.wg.Add(1)
	go s.runWorker(gen, transcript)
	return nil
}

// Interrupt cancels the reply being generated for the connection, if any.
func (s *Service) Interrupt(connID string) bool {
	interrupted := s.registry.Interrupt(connID)
	if interrupted {
		log.Info().Str("component", "call").Str("conn_id", connID).Msg("reply interrupted")
	}
	return interrupted
}

// UpdateStatus records a client-reported status and acknowledges it.
func (s *Service) UpdateStatus(connID, status string) bool {
	status = strings.TrimSpace(status)
	if status == "" {
		return false
	}
	if _, ok := s.registry.SetStatus(connID, status); !ok {
		return false
	}
	s.dispatcher.SendToConnection(connID, dispatch.NewEvent(dispatch.EventStatusUpdated, map[string]any{
		"status": status,
	}))
	return true
}

// Get returns the connection's call record.
func (s *Service) Get(connID string) (Record, bool) {
	return s.registry.Get(connID)
}

// ActiveCalls reports the number of open calls.
func (s *Service) ActiveCalls() int {
	return s.registry.Len()
}

// Calls lists the open calls.
func (s *Service) Calls() []Record {
	return s.registry.Snapshot()
}

// Wait blocks until every worker has exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels every in-flight reply and waits for the workers, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("call workers still running: %w", ctx.Err())
	}
}

func (s *Service) sendError(connID, message string) {
	s.dispatcher.SendToConnection(connID, dispatch.ErrorEvent(message))
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*10) / 10
}
