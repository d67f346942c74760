package call

import (
	"context"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle position of a call.
type State string

const (
	StateIdle       State = "idle"
	StateInCall     State = "in_call"
	StateProcessing State = "processing"
	StateEnded      State = "ended"
)

// Record describes one active call, keyed by connection id.
type Record struct {
	ConnID      string    `json:"connId"`
	SessionID   string    `json:"sessionId"`
	CharacterID string    `json:"characterId"`
	Room        string    `json:"room"`
	State       State     `json:"state"`
	StartedAt   time.Time `json:"startedAt"`
	Status      string    `json:"status"`
	Canceled    bool      `json:"canceled"`
}

// Generation is the handle a worker holds for its in-flight reply.
type Generation struct {
	Ctx    context.Context
	Token  uint64
	Record Record
}

type entry struct {
	rec    Record
	token  uint64
	cancel context.CancelCauseFunc
}

// Registry maps connection ids to call records. Every method is atomic with respect to the others.
type Registry struct {
	mu      sync.Mutex
	records map[string]*entry
	seq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*entry)}
}

// InsertIfAbsent stores rec unless its connection already has a call.
func (r *Registry) InsertIfAbsent(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ConnID]; exists {
		return ErrAlreadyInCall
	}
	r.records[rec.ConnID] = &entry{rec: rec}
	return nil
}

// Remove deletes the call and cancels its in-flight generation, if any.
func (r *Registry) Remove(connID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[connID]
	if !ok {
		return Record{}, false
	}
	delete(r.records, connID)
	if e.cancel != nil {
		e.cancel(ErrCallEnded)
	}
	e.rec.State = StateEnded
	return e.rec, true
}

// Get returns a copy of the call record.
func (r *Registry) Get(connID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[connID]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// BeginGeneration moves an in_call record to processing and returns a context that is
// cancelled when the call is interrupted or removed.
func (r *Registry) BeginGeneration(parent context.Context, connID string) (Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[connID]
	if !ok {
		return Generation{}, ErrCallNotFound
	}
	if e.rec.State != StateInCall {
		return Generation{}, ErrBusy
	}

	r.seq++
	ctx, cancel := context.WithCancelCause(parent)
	e.token = r.seq
	e.cancel = cancel
	e.rec.State = StateProcessing
	e.rec.Canceled = false

	return Generation{Ctx: ctx, Token: e.token, Record: e.rec}, nil
}

// FinishGeneration returns the call to in_call. It reports false when the call is gone or a
// different generation owns it.
func (r *Registry) FinishGeneration(connID string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[connID]
	if !ok || e.token != token || e.cancel == nil {
		return false
	}
	e.cancel(nil)
	e.cancel = nil
	e.rec.State = StateInCall
	return true
}

// Interrupt flags the in-flight generation and cancels it. It reports false when nothing is generating.
func (r *Registry) Interrupt(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[connID]
	if !ok || e.rec.State != StateProcessing || e.cancel == nil {
		return false
	}
	e.rec.Canceled = true
	e.cancel(ErrInterrupted)
	return true
}

// SetStatus overwrites the free-form status of the call.
func (r *Registry) SetStatus(connID, status string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[connID]
	if !ok {
		return Record{}, false
	}
	e.rec.Status = status
	return e.rec, true
}

// Len reports the number of active calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Snapshot copies every record, oldest call first.
func (r *Registry) Snapshot() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.records))
	for _, e := range r.records {
		out = append(out, e.rec)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
