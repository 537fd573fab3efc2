package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/cedar/lib/logger"
	"github.com/ValentinKolb/cedar/lib/table"
	"github.com/panjf2000/ants/v2"
)

// DefaultInterval is the automatic background snapshot interval.
const DefaultInterval = 90 * time.Second

// Snapshotter writes full point-in-time serializations of the store to a
// single snapshot file. The file is one JSON object mapping key to record
// and is always replaced wholesale: writes go to a staging file that is
// atomically renamed over the destination, so a recovery read never
// observes a torn snapshot.
//
// At most one snapshot write is in flight at any time. A background save
// requested while another write is running is skipped (the interval timer
// retries soon enough); a synchronous Save waits its turn.
type Snapshotter struct {
	path string
	dump func() map[string]table.Record

	mu   sync.Mutex // serializes writes to the snapshot file
	pool *ants.Pool

	log    logger.Logger
	report func(err error)

	saves   *metrics.Counter
	skipped *metrics.Counter
}

// New creates a snapshotter for the given file path. The dump callback
// must return the live records to serialize; it is called once per save.
func New(path, name string, dump func() map[string]table.Record, log logger.Logger, report func(error)) (*Snapshotter, error) {
	// one worker, non-blocking: a second submission while a background
	// save runs is rejected instead of queued
	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("snapshot: pool: %w", err)
	}

	return &Snapshotter{
		path:   path,
		dump:   dump,
		pool:   pool,
		log:    log,
		report: report,

		saves:   metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_snapshot_saves_total{store=%q}`, name)),
		skipped: metrics.GetOrCreateCounter(fmt.Sprintf(`cedar_snapshot_skipped_total{store=%q}`, name)),
	}, nil
}

// Save synchronously serializes the store and returns once the snapshot is
// durable on disk.
func (s *Snapshotter) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write()
}

// BgSave schedules an asynchronous snapshot and returns immediately. If a
// snapshot write is already in flight the request is skipped. Failures are
// reported through the diagnostics callback.
func (s *Snapshotter) BgSave() {
	err := s.pool.Submit(func() {
		if !s.mu.TryLock() {
			s.skipped.Inc()
			s.log.Debug("snapshot: save already in flight, skipping")
			return
		}
		defer s.mu.Unlock()

		if err := s.write(); err != nil {
			s.report(fmt.Errorf("snapshot: background save: %w", err))
		}
	})
	if err != nil {
		// pool is non-blocking with a single worker: overload means a
		// background save is already queued or running
		s.skipped.Inc()
		s.log.Debug("snapshot: save already in flight, skipping")
	}
}

// Run triggers a background snapshot on every interval tick until the
// context is cancelled. It blocks and should be run in its own goroutine.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.BgSave()
		case <-ctx.Done():
			s.log.Debug("snapshot: interval loop stopped")
			return
		}
	}
}

// Load reads and deserializes the snapshot file.
func (s *Snapshotter) Load() (map[string]table.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", s.path, err)
	}

	state := make(map[string]table.Record)
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", s.path, err)
	}
	return state, nil
}

// Close releases the background worker. A save in flight completes first.
func (s *Snapshotter) Close() {
	s.pool.Release()
	// acquiring the write lock once waits out an in-flight save
	s.mu.Lock()
	s.mu.Unlock()
}

// write serializes the current dump to the staging file and atomically
// publishes it. Callers must hold s.mu.
func (s *Snapshotter) write() error {
	data, err := json.Marshal(s.dump())
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
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

	if err = os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	syncDir(filepath.Dir(s.path))

	s.saves.Inc()
	s.log.Debugf("snapshot: wrote %d bytes", len(data))
	return nil
}

// syncDir fsyncs a directory so a rename is durable. Best effort.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
