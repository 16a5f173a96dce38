// internal/game/timer_test.go
package game

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickRecorder struct {
	ticks chan uint64
	grace chan uint64
}

func newTickRecorder() *tickRecorder {
	return &tickRecorder{ticks: make(chan uint64, 16), grace: make(chan uint64, 16)}
}

func (tr *tickRecorder) onTick(_ uuid.UUID, epoch uint64)  { tr.ticks <- epoch }
func (tr *tickRecorder) onGrace(_ uuid.UUID, epoch uint64) { tr.grace <- epoch }

func TestTimerPrepareWaitsForStart(t *testing.T) {
	tr := newTickRecorder()
	tm := NewTimerManager(time.Millisecond, time.Hour, tr.onTick, tr.onGrace)
	id := uuid.New()
	t.Cleanup(tm.StopAll)

	tm.Prepare(id, 3)
	left, running := tm.Remaining(id)
	assert.Equal(t, 3, left)
	assert.False(t, running)

	select {
	case <-tr.ticks:
		t.Fatal("prepared clock ticked before start")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, tm.StartNow(id))
	assert.False(t, tm.StartNow(id), "already running")
	epoch := <-tr.ticks
	remaining, ok := tm.Advance(id, epoch)
	require.True(t, ok)
	assert.Equal(t, 2, remaining)
}

func TestTimerStaleEpochDropped(t *testing.T) {
	tr := newTickRecorder()
	tm := NewTimerManager(time.Hour, time.Hour, tr.onTick, tr.onGrace)
	id := uuid.New()
	t.Cleanup(tm.StopAll)

	old := tm.Prepare(id, 5)
	require.True(t, tm.StartNow(id))
	fresh := tm.Prepare(id, 10)
	require.NotEqual(t, old, fresh)

	_, ok := tm.Advance(id, old)
	assert.False(t, ok)
	assert.False(t, tm.Current(id, old))
	assert.True(t, tm.Current(id, fresh))

	_, running := tm.Remaining(id)
	assert.False(t, running, "prepare always stops the previous clock")
}

func TestTimerCountsDownToZero(t *testing.T) {
	tr := newTickRecorder()
	tm := NewTimerManager(time.Millisecond, time.Hour, tr.onTick, tr.onGrace)
	id := uuid.New()
	t.Cleanup(tm.StopAll)

	tm.Prepare(id, 2)
	require.True(t, tm.StartNow(id))

	var seen []int
	for len(seen) < 2 {
		epoch := <-tr.ticks
		remaining, ok := tm.Advance(id, epoch)
		require.True(t, ok)
		seen = append(seen, remaining)
	}
	assert.Equal(t, []int{1, 0}, seen)
	_, running := tm.Remaining(id)
	assert.False(t, running)
}

func TestTimerReadyProtocol(t *testing.T) {
	tr := newTickRecorder()
	tm := NewTimerManager(time.Hour, 5*time.Millisecond, tr.onTick, tr.onGrace)
	id := uuid.New()
	t.Cleanup(tm.StopAll)
	alive := []string{"a", "b", "c"}

	epoch := tm.Prepare(id, 30)
	n, started := tm.MarkReady(id, "a", alive)
	assert.Equal(t, 1, n)
	assert.False(t, started)

	select {
	case got := <-tr.grace:
		assert.Equal(t, epoch, got)
	case <-time.After(time.Second):
		t.Fatal("grace timer never fired")
	}

	n, started = tm.MarkReady(id, "b", alive)
	assert.Equal(t, 2, n)
	assert.False(t, started)
	assert.True(t, tm.RecheckReady(id, []string{"a", "b"}), "shrunken alive set is fully ready")
	assert.Equal(t, 2, tm.ReadyCount(id))
}

func TestTimerStopClears(t *testing.T) {
	tr := newTickRecorder()
	tm := NewTimerManager(time.Hour, time.Hour, tr.onTick, tr.onGrace)
	a, b := uuid.New(), uuid.New()
	tm.Prepare(a, 1)
	tm.Prepare(b, 1)
	assert.Equal(t, 2, tm.Active())

	tm.Stop(a)
	assert.Equal(t, 1, tm.Active())
	tm.StopAll()
	assert.Zero(t, tm.Active())
	assert.False(t, tm.StartNow(b))
}
