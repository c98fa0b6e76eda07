package room

import (
	"sync"
	"time"
)

// timerSlot tracks one named, cancellable, rearmable one-shot. Generation
// increments on every Arm/Cancel so a firing that lost the race against a
// rearm can be detected and dropped — spec §5's "sequence/generation check".
type timerSlot struct {
	timer      *time.Timer
	generation uint64
}

// timerManager owns all of a room's timers. Firings are posted back onto the
// room's action channel rather than mutating Room state directly from the
// timer goroutine, so every timer effect is serialized through Room.Run like
// any other event (spec §9's "timers as first-class events").
type timerManager struct {
	mu    sync.Mutex
	slots map[string]*timerSlot
	post  func(action)
}

func newTimerManager(post func(action)) *timerManager {
	return &timerManager{slots: make(map[string]*timerSlot), post: post}
}

// Arm (re)schedules the named timer to fire after d, canceling any previous
// scheduling for that name. Returns the generation the firing action will
// carry, for tests that want to assert on it.
func (tm *timerManager) Arm(name string, d time.Duration) uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	slot, ok := tm.slots[name]
	if !ok {
		slot = &timerSlot{}
		tm.slots[name] = slot
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.generation++
	gen := slot.generation

	slot.timer = time.AfterFunc(d, func() {
		tm.post(action{Type: actionTimerFired, TimerName: name, TimerGen: gen})
	})
	return gen
}

// Cancel stops the named timer, if armed, and bumps its generation so any
// in-flight firing is ignored when it arrives.
func (tm *timerManager) Cancel(name string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	slot, ok := tm.slots[name]
	if !ok {
		return
	}
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.generation++
}

// CancelAll stops every armed timer. Called when a room is torn down.
func (tm *timerManager) CancelAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for _, slot := range tm.slots {
		if slot.timer != nil {
			slot.timer.Stop()
			slot.timer = nil
		}
		slot.generation++
	}
}

// isCurrent reports whether gen is still the live generation for name — a
// stale firing (one whose generation lost a race against a later Arm/Cancel)
// returns false.
func (tm *timerManager) isCurrent(name string, gen uint64) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	slot, ok := tm.slots[name]
	if !ok {
		return false
	}
	return slot.generation == gen
}

// Timer name constants. Disconnect-grace timers are per player and use
// graceTimerName(playerID).
const (
	timerCountdownTick = "countdown_tick"
	timerInterRound    = "inter_round"
	timerRoomIdle      = "room_idle"
	timerRejoinWindow  = "rejoin_window"
)

func graceTimerName(playerID string) string {
	return "grace:" + playerID
}
