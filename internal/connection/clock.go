package connection

import "time"

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSlot holds at most one pending task. A task fires only if its ID
// still owns the slot, so cancel is idempotent and a late timer callback
// from a cancelled task does nothing.
type timerSlot struct {
	timer Timer
	id    uint64
}

func (s *timerSlot) pending() bool {
	return s.id != 0
}

func (s *timerSlot) cancel() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.id = 0
}

// take consumes the slot if id still owns it.
func (s *timerSlot) take(id uint64) bool {
	if id == 0 || s.id != id {
		return false
	}
	s.timer = nil
	s.id = 0
	return true
}
