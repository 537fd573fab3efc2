package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/cedar/lib/expiry"
	"github.com/ValentinKolb/cedar/lib/journal"
	"github.com/ValentinKolb/cedar/lib/logger"
	"github.com/ValentinKolb/cedar/lib/snapshot"
	"github.com/ValentinKolb/cedar/lib/table"
)

// diagBuffer is the capacity of the diagnostics channel. Signals beyond
// the buffer are dropped, never blocked on.
const diagBuffer = 64

type storeImpl struct {
	opts Options
	log  logger.Logger

	tbl   *table.Table
	jrnl  *journal.Journal
	snap  *snapshot.Snapshotter
	sched *expiry.Scheduler

	diags  chan Diagnostic
	cancel context.CancelFunc
	closed atomic.Bool
}

// Open creates or recovers the store described by opts. Recovery never
// fails the open: an unreadable journal falls back to the snapshot, an
// unreadable snapshot falls back to an empty store, and both degradations
// are reported through Diagnostics.
func Open(opts *Options) (IStore, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	s := &storeImpl{
		opts:  opts.withDefaults(),
		tbl:   table.New(),
		diags: make(chan Diagnostic, diagBuffer),
	}
	s.log = s.opts.Logger

	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return nil, NewError(RetCInternalError, fmt.Sprintf("create dir %s: %v", s.opts.Dir, err))
	}

	journalPath := filepath.Join(s.opts.Dir, s.opts.Name+".journal")
	snapshotPath := filepath.Join(s.opts.Dir, s.opts.Name+".snapshot")

	var err error
	s.snap, err = snapshot.New(snapshotPath, s.opts.Name, s.dumpLive, s.log, func(e error) {
		s.pushDiag(DiagSnapshotIO, e)
	})
	if err != nil {
		return nil, NewError(RetCInternalError, err.Error())
	}

	// recover the persisted state before the journal writer is attached
	state, fellBack := s.recover(journalPath)

	s.jrnl, err = journal.Open(journalPath, s.opts.Name, s.opts.Sync, s.log, func(e error) {
		s.pushDiag(DiagJournalIO, e)
	})
	if err != nil {
		s.snap.Close()
		return nil, NewError(RetCIOFailure, err.Error())
	}

	s.sched = expiry.New(s.opts.Name, s.removeExpired)
	s.loadState(state)

	// after a snapshot fallback the journal content is unusable; rebuild
	// it from the recovered state so the next recovery replays cleanly
	if fellBack {
		if cerr := s.jrnl.Compact(s.dumpLive); cerr != nil {
			s.log.Errorf("rebuilding journal after fallback: %v", cerr)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.opts.SnapshotInterval > 0 {
		go s.snap.Run(ctx, s.opts.SnapshotInterval)
	}

	s.log.Infof("store opened (dir=%s, sync=%s)", s.opts.Dir, s.opts.Sync)
	return s, nil
}

// recover loads the persisted state: journal first, snapshot as fallback,
// empty as last resort. The second return value reports whether the
// snapshot fallback was taken.
func (s *storeImpl) recover(journalPath string) (map[string]table.Record, bool) {
	state, err := journal.Recover(journalPath)
	if err == nil {
		return state, false
	}
	s.log.Warnf("journal unreadable, falling back to snapshot: %v", err)

	state, serr := s.snap.Load()
	if serr == nil {
		s.pushDiag(DiagRecoveryDegraded, fmt.Errorf("journal unreadable, recovered %d keys from snapshot: %w", len(state), err))
		return state, true
	}

	s.log.Errorf("snapshot unreadable as well, starting empty: %v", serr)
	s.pushDiag(DiagRecoveryDegraded, fmt.Errorf("journal and snapshot unreadable, starting empty: %v / %v", err, serr))
	return map[string]table.Record{}, true
}

// loadState installs recovered records. Expiration deadlines are
// recomputed against current time: already elapsed records are discarded
// (with a tombstone appended so the journal converges) instead of being
// revived, the rest are rescheduled with their remaining duration.
func (s *storeImpl) loadState(state map[string]table.Record) {
	now := s.nowMs()

	for key, rec := range state {
		if rec.Expired(now) {
			s.jrnl.Append(key, nil)
			continue
		}
		rec := rec
		s.tbl.Update(key, func(table.Record, bool) (table.Record, table.Op) {
			return rec, table.OpStore
		})
		if rec.ExpireAt != 0 {
			s.sched.Schedule(key, rec.ExpireAt)
		}
	}
}

// --------------------------------------------------------------------------
// Core Commands
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (string, error) {
	s.count("get")

	rec, ok := s.tbl.Get(key, s.nowMs())
	if !ok {
		return "", NewError(RetCNotFound, fmt.Sprintf("key %q not found", key))
	}
	return rec.Value, nil
}

func (s *storeImpl) Set(key, value string) error {
	s.count("set")

	s.sched.Cancel(key)
	s.tbl.Update(key, func(table.Record, bool) (table.Record, table.Op) {
		rec := table.Record{Value: value}
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})
	return nil
}

func (s *storeImpl) SetEx(key, value string, ttl time.Duration) error {
	s.count("setex")

	deadline := s.nowMs() + ttl.Milliseconds()

	s.sched.Cancel(key)
	s.tbl.Update(key, func(table.Record, bool) (table.Record, table.Op) {
		rec := table.Record{Value: value, ExpireAt: deadline}
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})
	s.sched.Schedule(key, deadline)
	return nil
}

// SetNX is the atomic check-and-install primitive that lockmgr builds on.
// The existence check and the store happen under the key's lock, so two
// concurrent SetNX calls for the same key cannot both win.
func (s *storeImpl) SetNX(key, value string, ttl time.Duration) (bool, error) {
	s.count("setnx")

	now := s.nowMs()
	deadline := int64(0)
	if ttl > 0 {
		deadline = now + ttl.Milliseconds()
	}

	won := false
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		if loaded && !old.Expired(now) {
			return old, table.OpKeep
		}
		won = true
		rec := table.Record{Value: value, ExpireAt: deadline}
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	if won && deadline != 0 {
		s.sched.Schedule(key, deadline)
	}
	return won, nil
}

func (s *storeImpl) Del(key string) error {
	s.count("del")

	now := s.nowMs()
	found := false

	s.sched.Cancel(key)
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		if !loaded {
			return old, table.OpKeep
		}
		// an expired leftover is removed physically but reported absent
		found = !old.Expired(now)
		s.jrnl.Append(key, nil)
		return old, table.OpDelete
	})

	if !found {
		return NewError(RetCNotFound, fmt.Sprintf("key %q not found", key))
	}
	return nil
}

func (s *storeImpl) Exists(key string) bool {
	s.count("exists")
	return s.tbl.Has(key, s.nowMs())
}

// --------------------------------------------------------------------------
// Expiration Commands
// --------------------------------------------------------------------------

func (s *storeImpl) Expire(key string, ttl time.Duration) error {
	s.count("expire")

	now := s.nowMs()
	deadline := now + ttl.Milliseconds()
	found := false

	s.sched.Cancel(key)
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		if !loaded || old.Expired(now) {
			return old, table.OpKeep
		}
		found = true
		rec := old
		rec.ExpireAt = deadline
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	if !found {
		return NewError(RetCNotFound, fmt.Sprintf("key %q not found", key))
	}
	s.sched.Schedule(key, deadline)
	return nil
}

func (s *storeImpl) Persist(key string) error {
	s.count("persist")

	now := s.nowMs()
	found := false

	s.sched.Cancel(key)
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		if !loaded || old.Expired(now) {
			return old, table.OpKeep
		}
		found = true
		if old.ExpireAt == 0 {
			// no active TTL, nothing to clear
			return old, table.OpKeep
		}
		rec := old
		rec.ExpireAt = 0
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	if !found {
		return NewError(RetCNotFound, fmt.Sprintf("key %q not found", key))
	}
	return nil
}

func (s *storeImpl) TTL(key string) int64 {
	s.count("ttl")

	remaining := s.PTTL(key)
	if remaining < 0 {
		return remaining
	}
	// round up so a freshly armed N second TTL reports N
	return (remaining + 999) / 1000
}

func (s *storeImpl) PTTL(key string) int64 {
	s.count("pttl")

	now := s.nowMs()
	rec, ok := s.tbl.Get(key, now)
	switch {
	case !ok:
		return -2
	case rec.ExpireAt == 0:
		return -1
	default:
		return rec.ExpireAt - now
	}
}

// removeExpired is the scheduler's removal path. It runs through the same
// mutation path as an explicit Del and appends a journal tombstone. The
// deadline comparison rejects stale firings: if the record was replaced,
// re-expired or persisted since the timer was armed, its deadline no
// longer matches and nothing is removed.
func (s *storeImpl) removeExpired(key string, deadlineMs int64) {
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		if !loaded || old.ExpireAt != deadlineMs {
			return old, table.OpKeep
		}
		s.jrnl.Append(key, nil)
		return old, table.OpDelete
	})
}

// --------------------------------------------------------------------------
// Introspection Commands
// --------------------------------------------------------------------------

// RandomKey returns the first live key the concurrent map iteration
// yields. The iteration order is unspecified but not uniformly random;
// callers must not rely on sampling quality.
func (s *storeImpl) RandomKey() (string, bool) {
	s.count("randomkey")

	now := s.nowMs()
	var (
		key   string
		found bool
	)
	s.tbl.Range(func(k string, rec table.Record) bool {
		if rec.Expired(now) {
			return true
		}
		key, found = k, true
		return false
	})
	return key, found
}

func (s *storeImpl) Dump(key string) (table.Record, error) {
	s.count("dump")

	rec, ok := s.tbl.Get(key, s.nowMs())
	if !ok {
		return table.Record{}, NewError(RetCNotFound, fmt.Sprintf("key %q not found", key))
	}
	return rec, nil
}

// --------------------------------------------------------------------------
// Persistence Commands
// --------------------------------------------------------------------------

func (s *storeImpl) Save() error {
	s.count("save")

	if err := s.jrnl.Flush(); err != nil {
		return NewError(RetCIOFailure, fmt.Sprintf("journal flush: %v", err))
	}
	if err := s.snap.Save(); err != nil {
		return NewError(RetCIOFailure, fmt.Sprintf("snapshot: %v", err))
	}
	return nil
}

func (s *storeImpl) BgSave() {
	s.count("bgsave")
	s.snap.BgSave()
}

func (s *storeImpl) BgRewriteAOF() {
	s.count("bgrewriteaof")
	go func() {
		// failures are reported on the journal's diagnostic path
		_ = s.jrnl.Compact(s.dumpLive)
	}()
}

func (s *storeImpl) Diagnostics() <-chan Diagnostic {
	return s.diags
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()
	s.sched.Stop()
	err := s.jrnl.Close()
	s.snap.Close()

	s.log.Infof("store closed")
	if err != nil {
		return NewError(RetCIOFailure, err.Error())
	}
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *storeImpl) nowMs() int64 {
	return time.Now().UnixMilli()
}

// dumpLive snapshots the live records. Shared by the snapshotter and by
// journal compaction.
func (s *storeImpl) dumpLive() map[string]table.Record {
	return s.tbl.Dump(s.nowMs())
}

// pushDiag delivers a diagnostic without ever blocking the signaling
// goroutine. Undrained signals are dropped.
func (s *storeImpl) pushDiag(kind DiagKind, err error) {
	s.log.Warnf("%s: %v", kind, err)
	metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_diagnostics_total{store=%q,kind=%q}`, s.opts.Name, kind.String())).Inc()

	select {
	case s.diags <- Diagnostic{Kind: kind, Err: err, Time: time.Now()}:
	default:
	}
}

// count bumps the per-command metrics counter.
func (s *storeImpl) count(command string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_commands_total{store=%q,command=%q}`, s.opts.Name, command)).Inc()
}
