package parking

import "sync/atomic"

// stateBox holds the availability count. Only the control goroutine writes
// it; the atomic lets Status be read from the bridge side.
type stateBox struct {
	available atomic.Int64
}

func (s *stateBox) get() int       { return int(s.available.Load()) }
func (s *stateBox) set(n int)      { s.available.Store(int64(n)) }
func (s *stateBox) swap(n int) int { return int(s.available.Swap(int64(n))) }
