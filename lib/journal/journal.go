package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/cedar/lib/logger"
	"github.com/ValentinKolb/cedar/lib/table"
	"github.com/alphadose/zenq/v2"
)

// --------------------------------------------------------------------------
// Constants and Types
// --------------------------------------------------------------------------

const (
	// queueSize is the capacity of the append queue (must be a power of two).
	queueSize = 1 << 14

	// everySecInterval is the fsync interval for SyncEverySecond.
	everySecInterval = time.Second
)

// SyncPolicy controls when appended fragments are fsynced to disk.
type SyncPolicy int

const (
	// SyncEverySecond fsyncs the journal once per second (default).
	SyncEverySecond SyncPolicy = iota
	// SyncAlways fsyncs after every appended fragment.
	SyncAlways
)

func (p SyncPolicy) String() string {
	switch p {
	case SyncAlways:
		return "always"
	case SyncEverySecond:
		return "everysec"
	default:
		return "unknown"
	}
}

// message is the unit of work handed to the single writer goroutine.
type msgKind uint8

const (
	msgAppend msgKind = iota
	msgSync
	msgBarrier
	msgCompact
)

type message struct {
	kind msgKind
	frag []byte                        // msgAppend
	dump func() map[string]table.Record // msgCompact
	ack  chan error                    // msgBarrier, msgCompact
}

// --------------------------------------------------------------------------
// Journal
// --------------------------------------------------------------------------

// Journal is the append-only durable log of mutations.
//
// Producers never touch the file: every mutation is encoded into a
// self-delimited fragment and pushed onto a multi-producer queue. A single
// consumer goroutine owns the file descriptor and applies messages in
// order, which guarantees at most one in-flight write to the journal file
// and makes compaction trivially race-safe against concurrent appends:
// fragments enqueued while a rewrite is running are applied after it
// completes, never dropped.
type Journal struct {
	path   string
	policy SyncPolicy

	queue *zenq.ZenQ[message]
	f     *os.File

	log    logger.Logger
	report func(err error) // background IO failures, never nil

	wg       sync.WaitGroup
	stopSync chan struct{}

	appends     *metrics.Counter
	bytes       *metrics.Counter
	syncs       *metrics.Counter
	compactions *metrics.Counter
}

// Open opens (or creates) the journal file and starts the writer goroutine.
// The report callback receives background IO failures; it must be non-nil
// and safe for concurrent use.
func Open(path, name string, policy SyncPolicy, log logger.Logger, report func(error)) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{
		path:     path,
		policy:   policy,
		queue:    zenq.New[message](queueSize),
		f:        f,
		log:      log,
		report:   report,
		stopSync: make(chan struct{}),

		appends:     metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_journal_appends_total{store=%q}`, name)),
		bytes:       metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_journal_bytes_total{store=%q}`, name)),
		syncs:       metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_journal_syncs_total{store=%q}`, name)),
		compactions: metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_journal_compactions_total{store=%q}`, name)),
	}

	j.wg.Add(1)
	go j.consume()

	if policy == SyncEverySecond {
		go j.syncLoop()
	}

	return j, nil
}

// --------------------------------------------------------------------------
// Producer Side
// --------------------------------------------------------------------------

// Append queues a mutation fragment for key. A nil record is a tombstone.
// The fragment is encoded eagerly so the caller may reuse the record.
// Append returns once the fragment is queued; durability follows the
// journal's sync policy.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (j *Journal) Append(key string, rec *table.Record) {
	j.queue.Write(message{kind: msgAppend, frag: encodeFragment(key, rec)})
}

// Flush blocks until every fragment queued before the call is written and
// fsynced. It is used by synchronous save operations and by Close.
func (j *Journal) Flush() error {
	ack := make(chan error, 1)
	j.queue.Write(message{kind: msgBarrier, ack: ack})
	return <-ack
}

// Compact rewrites the journal to exactly one fragment per live key,
// dropping tombstones and superseded history. The dump callback is invoked
// by the writer goroutine so the rewrite observes a state at least as new
// as every fragment already applied.
func (j *Journal) Compact(dump func() map[string]table.Record) error {
	ack := make(chan error, 1)
	j.queue.Write(message{kind: msgCompact, dump: dump, ack: ack})
	return <-ack
}

// Close flushes outstanding fragments and releases the file.
// The journal must not be used afterwards.
func (j *Journal) Close() error {
	err := j.Flush()
	if j.policy == SyncEverySecond {
		close(j.stopSync)
	}
	j.queue.Close()
	j.wg.Wait()
	if cerr := j.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// --------------------------------------------------------------------------
// Writer Goroutine
// --------------------------------------------------------------------------

// consume is the single writer loop. It owns j.f exclusively.
func (j *Journal) consume() {
	defer j.wg.Done()

	for {
		m, open := j.queue.Read()
		if !open {
			return
		}

		switch m.kind {
		case msgAppend:
			if _, err := j.f.Write(m.frag); err != nil {
				j.report(fmt.Errorf("journal: append: %w", err))
				continue
			}
			j.appends.Inc()
			j.bytes.Add(len(m.frag))
			if j.policy == SyncAlways {
				j.sync()
			}

		case msgSync:
			j.sync()

		case msgBarrier:
			err := j.f.Sync()
			if err == nil {
				j.syncs.Inc()
			}
			m.ack <- err

		case msgCompact:
			err := j.rewrite(m.dump())
			if err != nil {
				j.report(fmt.Errorf("journal: compact: %w", err))
			} else {
				j.compactions.Inc()
			}
			m.ack <- err
		}
	}
}

// sync fsyncs the journal file, reporting failures on the diagnostic path.
func (j *Journal) sync() {
	if err := j.f.Sync(); err != nil {
		j.report(fmt.Errorf("journal: fsync: %w", err))
		return
	}
	j.syncs.Inc()
}

// syncLoop enqueues a sync message once per second (SyncEverySecond only).
// Routing the sync through the queue keeps the file single-owner.
func (j *Journal) syncLoop() {
	ticker := time.NewTicker(everySecInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.queue.Write(message{kind: msgSync})
		case <-j.stopSync:
			return
		}
	}
}

// rewrite writes one fragment per live key to a staging file and atomically
// publishes it over the journal path. Runs on the writer goroutine.
func (j *Journal) rewrite(dump map[string]table.Record) error {
	tmp := j.path + ".rewrite"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	// sorted keys make rewrites deterministic
	keys := make([]string, 0, len(dump))
	for key := range dump {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := dump[key]
		if _, err = f.Write(encodeFragment(key, &rec)); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}

	if err = f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err = os.Rename(tmp, j.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	syncDir(filepath.Dir(j.path))

	// swap the append handle over to the rewritten file
	if err = j.f.Close(); err != nil {
		j.log.Warnf("journal: closing pre-rewrite handle: %v", err)
	}
	j.f, err = os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: reopen after rewrite: %w", err)
	}

	j.log.Debugf("journal: rewritten with %d live keys", len(dump))
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// encodeFragment renders one self-delimited journal fragment:
// a JSON string key, a colon, a JSON record or null tombstone, and a
// trailing comma. The comma doubles as the completeness marker for the
// recovery parser.
func encodeFragment(key string, rec *table.Record) []byte {
	kb, _ := json.Marshal(key)

	vb := []byte("null")
	if rec != nil {
		vb, _ = json.Marshal(*rec)
	}

	frag := make([]byte, 0, len(kb)+len(vb)+2)
	frag = append(frag, kb...)
	frag = append(frag, ':')
	frag = append(frag, vb...)
	frag = append(frag, ',')
	return frag
}

// syncDir fsyncs a directory so a rename is durable. Best effort: some
// platforms do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
