package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// BadgerEngine implements KV using Badger v3. It also implements
// prometheus.Collector, reporting its on-disk sizes and GC activity.
type BadgerEngine struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	lastGC    atomic.Int64 // Unix milliseconds
	gcRuns    atomic.Uint64
	gcRewrite atomic.Uint64

	descLSM     *prometheus.Desc
	descVLog    *prometheus.Desc
	descLastGC  *prometheus.Desc
	descGCRuns  *prometheus.Desc
	descRewrite *prometheus.Desc

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerEngine opens a Badger database according to cfg.
func NewBadgerEngine(cfg Config, logger *slog.Logger) (*BadgerEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	// Certificate bundles are a few KiB; keep them in the LSM tree.
	opts.ValueThreshold = 1 << 16
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	e.descLSM = prometheus.NewDesc("ussal_store_lsm_size_bytes", "Badger LSM tree size in bytes", nil, nil)
	e.descVLog = prometheus.NewDesc("ussal_store_value_log_size_bytes", "Badger value log size in bytes", nil, nil)
	e.descLastGC = prometheus.NewDesc("ussal_store_last_gc_timestamp_seconds", "Unix timestamp of the last value log GC", nil, nil)
	e.descGCRuns = prometheus.NewDesc("ussal_store_gc_runs_total", "Value log GC runs", nil, nil)
	e.descRewrite = prometheus.NewDesc("ussal_store_gc_rewrites_total", "Value log files rewritten by GC", nil, nil)

	if cfg.Dir != "" && cfg.GCInterval > 0 {
		go e.gcLoop()
	} else {
		close(e.doneCh)
	}

	logger.Info("store opened", "dir", cfg.Dir, "in_memory", cfg.Dir == "")
	return e, nil
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key. Deleting a missing key is not an error.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				break
			}
		}
		return nil
	})
}

// GC rewrites value log files until Badger reports nothing left to reclaim.
// It returns the number of files rewritten.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if e.cfg.Dir == "" {
		return 0, nil
	}

	rewrites := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return rewrites, fmt.Errorf("gc: %w", err)
		}
		rewrites++
	}

	e.lastGC.Store(time.Now().UnixMilli())
	e.gcRuns.Add(1)
	e.gcRewrite.Add(uint64(rewrites))
	if rewrites > 0 {
		e.logger.Info("value log gc", "rewrites", rewrites)
	}
	return rewrites, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats() Stats {
	lsm, vlog := e.db.Size()
	s := Stats{
		LSMSize:         uint64(lsm),
		ValueLogSize:    uint64(vlog),
		GCRunsTotal:     e.gcRuns.Load(),
		GCRewritesTotal: e.gcRewrite.Load(),
	}
	if ms := e.lastGC.Load(); ms > 0 {
		s.LastGC = time.UnixMilli(ms)
	}
	return s
}

// Describe implements prometheus.Collector.
func (e *BadgerEngine) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.descLSM
	ch <- e.descVLog
	ch <- e.descLastGC
	ch <- e.descGCRuns
	ch <- e.descRewrite
}

// Collect implements prometheus.Collector.
func (e *BadgerEngine) Collect(ch chan<- prometheus.Metric) {
	if e.closed.Load() {
		return
	}
	s := e.Stats()
	ch <- prometheus.MustNewConstMetric(e.descLSM, prometheus.GaugeValue, float64(s.LSMSize))
	ch <- prometheus.MustNewConstMetric(e.descVLog, prometheus.GaugeValue, float64(s.ValueLogSize))
	var last float64
	if !s.LastGC.IsZero() {
		last = float64(s.LastGC.UnixMilli()) / 1000
	}
	ch <- prometheus.MustNewConstMetric(e.descLastGC, prometheus.GaugeValue, last)
	ch <- prometheus.MustNewConstMetric(e.descGCRuns, prometheus.CounterValue, float64(s.GCRunsTotal))
	ch <- prometheus.MustNewConstMetric(e.descRewrite, prometheus.CounterValue, float64(s.GCRewritesTotal))
}

// Close stops background GC and closes the database. Further calls return
// ErrClosed from every operation.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopCh)
		<-e.doneCh
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
			return
		}
		e.logger.Info("store closed")
	})
	return err
}

func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("value log gc failed", "error", err)
			}
			cancel()
		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Badger's info output is per-table compaction noise; demote it.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
