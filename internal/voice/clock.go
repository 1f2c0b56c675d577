package voice

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock runs callbacks on time.AfterFunc goroutines.
func RealClock() Clock {
	return realClock{}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSlot owns at most one pending timer. Every arm or clear bumps gen so a callback
// that already left the clock can tell it was superseded.
type timerSlot struct {
	t   Timer
	gen uint64
}

func (s *timerSlot) clear() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
	s.gen++
}

func (s *timerSlot) armed() bool {
	return s.t != nil
}
