package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// KV is the key-value interface used by the certificate manager.
//
// Implementations must be safe for concurrent use and return ErrKeyNotFound
// for missing keys. Returned slices belong to the caller.
type KV interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Scan calls fn for each key with the given prefix, in key order,
	// until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	Close() error
}

// Stats contains storage engine statistics.
type Stats struct {
	LSMSize         uint64
	ValueLogSize    uint64
	LastGC          time.Time
	GCRunsTotal     uint64
	GCRewritesTotal uint64
}

// Config configures the Badger engine.
type Config struct {
	// Dir is the storage directory. Empty runs Badger in memory, which
	// loses the certificate cache on restart.
	Dir string

	// GCInterval is the interval between value log GC runs. Zero disables
	// the background loop.
	GCInterval time.Duration

	// GCDiscardRatio is the stale fraction of a value log file that makes
	// it eligible for rewrite (0.0-1.0).
	GCDiscardRatio float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncWrites makes every write fsync before returning.
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir. The store is
// small and rarely written, so the defaults favour a low footprint and
// durable writes.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		GCInterval:     time.Hour,
		GCDiscardRatio: 0.5,
		CacheSize:      8 << 20,
		SyncWrites:     true,
	}
}
