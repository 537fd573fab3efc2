package expiry

import (
	"fmt"
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/VictoriaMetrics/metrics"
)

const (
	// wheel granularity; remaining-TTL queries compute from the record's
	// absolute deadline and are not bound by this resolution
	tick      = 10 * time.Millisecond
	wheelSize = 512
)

// RemoveFunc is the store's removal path. It receives the deadline the
// timer was armed with so the store can verify, under the key's lock, that
// the live record still carries exactly that deadline before deleting —
// a stale firing never removes a record that has since been replaced or
// made permanent.
type RemoveFunc func(key string, deadlineMs int64)

// pending is a scheduled removal. The generation distinguishes a timer
// from its replacements for the same key.
type pending struct {
	timer *timingwheel.Timer
	gen   uint64
}

// Scheduler tracks one removal deadline per key on a hierarchical timing
// wheel. The wheel wakes at the next due tick instead of polling the key
// space. Invariant: at most one pending removal per key; Schedule and
// Cancel stop any prior timer for the key before installing new state.
type Scheduler struct {
	tw     *timingwheel.TimingWheel
	remove RemoveFunc

	mu      sync.Mutex
	entries map[string]pending
	gen     uint64

	fired *metrics.Counter
}

// New creates and starts a scheduler. The remove callback runs on a wheel
// goroutine and must be fast and non-blocking.
func New(name string, remove RemoveFunc) *Scheduler {
	s := &Scheduler{
		tw:      timingwheel.NewTimingWheel(tick, wheelSize),
		remove:  remove,
		entries: make(map[string]pending),
		fired:   metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_expirations_fired_total{store=%q}`, name)),
	}
	s.tw.Start()
	return s
}

// Schedule arms (or re-arms) the removal of key at the absolute deadline
// in unix milliseconds. A previously pending removal for the key is
// cancelled first. Deadlines in the past fire on the next tick.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Scheduler) Schedule(key string, deadlineMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.entries[key]; ok {
		p.timer.Stop()
	}

	s.gen++
	gen := s.gen

	d := time.Until(time.UnixMilli(deadlineMs))
	if d < 0 {
		d = 0
	}

	timer := s.tw.AfterFunc(d, func() {
		s.clear(key, gen)
		s.fired.Inc()
		s.remove(key, deadlineMs)
	})
	s.entries[key] = pending{timer: timer, gen: gen}
}

// Cancel stops and removes the pending removal for key, if any. After
// Cancel returns, a removal armed earlier for this key will not delete
// anything: even if its firing already left the wheel, the store-side
// deadline check rejects it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.entries[key]; ok {
		p.timer.Stop()
		delete(s.entries, key)
	}
}

// Len returns the number of keys with a pending removal.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop shuts the wheel down. Pending removals are dropped, not fired.
func (s *Scheduler) Stop() {
	s.tw.Stop()
}

// clear drops the bookkeeping entry for a fired timer. The generation
// guard keeps a firing that raced with a reschedule from removing the
// replacement entry.
func (s *Scheduler) clear(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.entries[key]; ok && p.gen == gen {
		delete(s.entries, key)
	}
}
