// Package cache provides a badger-backed byte cache with per-entry TTL.
// The fetcher uses it to avoid downloading the same image twice when a user
// adds and then deletes, or syncs, an image shortly after posting it.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"
)

// DefaultGCInterval is how often the value log is garbage collected.
const DefaultGCInterval = 10 * time.Minute

// Options configures the cache.
type Options struct {
	// Path is the badger directory. Empty keeps everything in memory.
	Path string
	// TTL is how long an entry lives. Zero means entries never expire.
	TTL time.Duration
	// GCInterval overrides DefaultGCInterval. Negative disables GC.
	GCInterval time.Duration
	Logger     *slog.Logger
}

// Cache stores byte values under string keys.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Open opens or creates the cache.
func Open(opts Options) (*Cache, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil // Disable Badger's internal logging

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	c := &Cache{
		db:      db,
		ttl:     opts.TTL,
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	interval := opts.GCInterval
	if interval == 0 {
		interval = DefaultGCInterval
	}
	if opts.Path != "" && interval > 0 {
		go c.gcLoop(interval)
	} else {
		close(c.stopped)
	}

	logger.Info("fetch cache opened", "path", opts.Path, "in_memory", opts.Path == "", "ttl", opts.TTL)
	return c, nil
}

// Close stops garbage collection and closes the database.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.stopped
		err = c.db.Close()
	})
	return err
}

// key hashes arbitrary strings (URLs can be long) into a fixed-size key.
func key(k string) []byte {
	sum := blake2b.Sum256([]byte(k))
	return append([]byte("fetch:"), sum[:]...)
}

// Get returns the cached value for k. The bool is false on a miss or after
// the entry expired.
func (c *Cache) Get(k string) ([]byte, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(k))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under k with the configured TTL.
func (c *Cache) Set(k string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key(k), value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes k. Missing keys are not an error.
func (c *Cache) Delete(k string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(k))
	})
}

func (c *Cache) gcLoop(every time.Duration) {
	defer close(c.stopped)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.runGC()
		}
	}
}

// runGC rewrites value log files until badger reports nothing left to do.
func (c *Cache) runGC() {
	for {
		err := c.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			c.logger.Warn("fetch cache gc failed", "error", err)
		}
		return
	}
}
