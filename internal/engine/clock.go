package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies the wall-clock instant the engine treats as "now".
//
// The engine reads the clock once per tick for context recompute and whenever
// it needs to decide whether a delayed event is due. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// sequence is a monotonic logical counter used to break ties between delayed
// events that share a fire time. Insertion order wins.
//
// Thread-safety: safe for concurrent use (atomic operations).
type sequence struct {
	seq atomic.Uint64
}

// Next returns the next sequence number and increments the counter.
func (s *sequence) Next() uint64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (s *sequence) Current() uint64 {
	return s.seq.Load()
}
