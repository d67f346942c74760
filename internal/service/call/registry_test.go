package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryInsertIfAbsent(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall, Room: "room-a"}))
	err := r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall, Room: "room-b"})
	require.ErrorIs(t, err, ErrAlreadyInCall)

	rec, ok := r.Get("c1")
	require.True(t, ok)
	require.Equal(t, "room-a", rec.Room)
	require.Equal(t, 1, r.Len())
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall}))

	rec, ok := r.Remove("c1")
	require.True(t, ok)
	require.Equal(t, StateEnded, rec.State)

	_, ok = r.Remove("c1")
	require.False(t, ok)
	_, ok = r.Get("c1")
	require.False(t, ok)
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall, Status: "active"}))

	rec, _ := r.Get("c1")
	rec.Status = "mutated"

	again, _ := r.Get("c1")
	require.Equal(t, "active", again.Status)
}

func TestRegistryGenerationLifecycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall}))

	gen, err := r.BeginGeneration(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, StateProcessing, gen.Record.State)

	_, err = r.BeginGeneration(context.Background(), "c1")
	require.ErrorIs(t, err, ErrBusy)

	require.True(t, r.Interrupt("c1"))
	require.ErrorIs(t, context.Cause(gen.Ctx), ErrInterrupted)

	rec, _ := r.Get("c1")
	require.True(t, rec.Canceled)

	require.True(t, r.FinishGeneration("c1", gen.Token))
	require.False(t, r.FinishGeneration("c1", gen.Token))
	require.False(t, r.Interrupt("c1"))

	rec, _ = r.Get("c1")
	require.Equal(t, StateInCall, rec.State)

	next, err := r.BeginGeneration(context.Background(), "c1")
	require.NoError(t, err)
	require.False(t, next.Record.Canceled)
	require.NotEqual(t, gen.Token, next.Token)

	_, err = r.BeginGeneration(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCallNotFound)
}

func TestRegistryRemoveCancelsGeneration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall}))
	gen, err := r.BeginGeneration(context.Background(), "c1")
	require.NoError(t, err)

	r.Remove("c1")
	require.ErrorIs(t, context.Cause(gen.Ctx), ErrCallEnded)

	// A new call on the same connection is not disturbed by the old worker finishing.
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall}))
	next, err := r.BeginGeneration(context.Background(), "c1")
	require.NoError(t, err)
	require.False(t, r.FinishGeneration("c1", gen.Token))

	rec, _ := r.Get("c1")
	require.Equal(t, StateProcessing, rec.State)
	require.NoError(t, next.Ctx.Err())
}

func TestRegistryConcurrentOperations(t *testing.T) {
	r := NewRegistry()

	var inserted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.InsertIfAbsent(Record{ConnID: "c1", State: StateInCall}) == nil {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, inserted.Load())

	var begun atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.BeginGeneration(context.Background(), "c1"); err == nil {
				begun.Add(1)
			} else if !errors.Is(err, ErrBusy) {
				panic(err)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.SetStatus("c1", "speaking")
			r.Snapshot()
			r.Get("c1")
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, begun.Load())
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "late", StartedAt: base.Add(time.Second)}))
	require.NoError(t, r.InsertIfAbsent(Record{ConnID: "early", StartedAt: base}))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "early", snap[0].ConnID)
}
