package kv

import (
	"time"

	"github.com/ValentinKolb/cedar/lib/journal"
	"github.com/ValentinKolb/cedar/lib/logger"
	"github.com/ValentinKolb/cedar/lib/snapshot"
)

// Options configures a store at creation time.
type Options struct {
	// Name namespaces the on-disk files: <Dir>/<Name>.journal and
	// <Dir>/<Name>.snapshot.
	Name string
	// Dir is the persistence directory. It is created if missing.
	Dir string
	// SnapshotInterval is the automatic background snapshot interval.
	// Zero selects the default (90s); a negative value disables the
	// automatic snapshot entirely.
	SnapshotInterval time.Duration
	// Sync is the journal fsync policy (default: once per second).
	Sync journal.SyncPolicy
	// Logger receives operational log messages. Nil selects the default
	// logrus-backed logger named after the store.
	Logger logger.Logger
}

// DefaultOptions returns the default store options.
func DefaultOptions() *Options {
	return &Options{
		Name:             "cedar",
		Dir:              ".",
		SnapshotInterval: snapshot.DefaultInterval,
		Sync:             journal.SyncEverySecond,
	}
}

// withDefaults fills the zero fields of opts from DefaultOptions.
func (o *Options) withDefaults() Options {
	def := DefaultOptions()

	out := *o
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.Dir == "" {
		out.Dir = def.Dir
	}
	if out.SnapshotInterval == 0 {
		out.SnapshotInterval = def.SnapshotInterval
	}
	if out.Logger == nil {
		out.Logger = logger.New(out.Name, false)
	}
	return out
}
