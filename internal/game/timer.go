// internal/game/timer.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimerHandle is the runtime clock of one match. Each Prepare bumps the epoch; callbacks
// carrying an older epoch are stale and must be dropped.
type TimerHandle struct {
	epoch     uint64
	remaining int
	running   bool
	ready     map[string]struct{}

	tick  *time.Timer
	grace *time.Timer
}

// TimerManager owns every match clock. The Manager calls it while holding the match lock;
// timer callbacks run on their own goroutines and re-enter the Manager through onTick and
// onGrace, which must take the match lock themselves.
type TimerManager struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*TimerHandle

	interval time.Duration
	grace    time.Duration

	onTick  func(id uuid.UUID, epoch uint64)
	onGrace func(id uuid.UUID, epoch uint64)

	epochs uint64
}

// NewTimerManager builds a manager whose countdown advances one second per interval.
func NewTimerManager(interval, grace time.Duration, onTick, onGrace func(uuid.UUID, uint64)) *TimerManager {
	return &TimerManager{
		handles:  make(map[uuid.UUID]*TimerHandle),
		interval: interval,
		grace:    grace,
		onTick:   onTick,
		onGrace:  onGrace,
	}
}

// Prepare clears any running clock for id and arms a stopped one at seconds.
func (tm *TimerManager) Prepare(id uuid.UUID, seconds int) uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if h, ok := tm.handles[id]; ok {
		h.stop()
	}
	tm.epochs++
	tm.handles[id] = &TimerHandle{
		epoch:     tm.epochs,
		remaining: seconds,
		ready:     make(map[string]struct{}),
	}
	return tm.epochs
}

// StartNow begins the countdown of a prepared clock. It reports false when there is no
// clock or it is already counting.
func (tm *TimerManager) StartNow(id uuid.UUID) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.startLocked(id)
}

func (tm *TimerManager) startLocked(id uuid.UUID) bool {
	h, ok := tm.handles[id]
	if !ok || h.running {
		return false
	}
	if h.grace != nil {
		h.grace.Stop()
		h.grace = nil
	}
	h.running = true
	tm.scheduleTick(id, h)
	return true
}

func (tm *TimerManager) scheduleTick(id uuid.UUID, h *TimerHandle) {
	epoch := h.epoch
	h.tick = time.AfterFunc(tm.interval, func() { tm.onTick(id, epoch) })
}

// MarkReady records participant as ready. The clock starts once every alive participant
// is ready; the first signal arms the grace timer. It returns the ready count and whether
// this call started the clock.
func (tm *TimerManager) MarkReady(id uuid.UUID, participant string, alive []string) (int, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	h, ok := tm.handles[id]
	if !ok || h.running {
		return 0, false
	}
	h.ready[participant] = struct{}{}
	if tm.allReadyLocked(h, alive) {
		return len(h.ready), tm.startLocked(id)
	}
	if h.grace == nil {
		epoch := h.epoch
		h.grace = time.AfterFunc(tm.grace, func() { tm.onGrace(id, epoch) })
	}
	return len(h.ready), false
}

// RecheckReady starts a prepared clock if the shrunken alive set is now fully ready.
func (tm *TimerManager) RecheckReady(id uuid.UUID, alive []string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	h, ok := tm.handles[id]
	if !ok || h.running || len(h.ready) == 0 {
		return false
	}
	if tm.allReadyLocked(h, alive) {
		return tm.startLocked(id)
	}
	return false
}

func (tm *TimerManager) allReadyLocked(h *TimerHandle, alive []string) bool {
	for _, p := range alive {
		if _, ok := h.ready[p]; !ok {
			return false
		}
	}
	return true
}

// Advance consumes one second of a counting clock. ok is false for stale epochs. When the
// result is still positive the next tick is scheduled.
func (tm *TimerManager) Advance(id uuid.UUID, epoch uint64) (remaining int, ok bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	h, exists := tm.handles[id]
	if !exists || h.epoch != epoch || !h.running {
		return 0, false
	}
	if h.remaining > 0 {
		h.remaining--
	}
	if h.remaining > 0 {
		tm.scheduleTick(id, h)
	} else {
		h.running = false
		h.tick = nil
	}
	return h.remaining, true
}

// Current reports whether epoch is the live clock of id.
func (tm *TimerManager) Current(id uuid.UUID, epoch uint64) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	h, ok := tm.handles[id]
	return ok && h.epoch == epoch
}

// Remaining returns the seconds left on the clock and whether it is counting.
func (tm *TimerManager) Remaining(id uuid.UUID) (int, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	h, ok := tm.handles[id]
	if !ok {
		return 0, false
	}
	return h.remaining, h.running
}

// ReadyCount returns how many participants signalled readiness for the prepared clock.
func (tm *TimerManager) ReadyCount(id uuid.UUID) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if h, ok := tm.handles[id]; ok {
		return len(h.ready)
	}
	return 0
}

// Stop clears the clock of id.
func (tm *TimerManager) Stop(id uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if h, ok := tm.handles[id]; ok {
		h.stop()
		delete(tm.handles, id)
	}
}

// StopAll clears every clock, used on shutdown.
func (tm *TimerManager) StopAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for id, h := range tm.handles {
		h.stop()
		delete(tm.handles, id)
	}
}

// Active returns the number of armed clocks.
func (tm *TimerManager) Active() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.handles)
}

func (h *TimerHandle) stop() {
	if h.tick != nil {
		h.tick.Stop()
		h.tick = nil
	}
	if h.grace != nil {
		h.grace.Stop()
		h.grace = nil
	}
	h.running = false
}
