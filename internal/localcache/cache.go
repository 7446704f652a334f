// Package localcache provides a best-effort local key-value cache for sync
// cursors. The database remains the source of truth; the cache only saves a
// round trip, so every accessor degrades to a no-op instead of failing when
// the backing store is unavailable.
package localcache

import (
	"errors"
	"log"

	badger "github.com/dgraph-io/badger/v4"
)

// Cache wraps a Badger store. A Cache with a nil db is disabled: Get returns
// (nil, nil) and Set does nothing, mirroring storage wrappers that return
// null in environments without persistence.
type Cache struct {
	db     *badger.DB
	logger *log.Logger
}

// Open opens (or creates) a cache at dir. An empty dir, or any open failure,
// yields a disabled cache rather than an error.
func Open(dir string) *Cache {
	logger := log.New(log.Writer(), "[localcache] ", log.LstdFlags)
	if dir == "" {
		return &Cache{logger: logger}
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		logger.Printf("open %s failed, cache disabled: %v", dir, err)
		return &Cache{logger: logger}
	}
	return &Cache{db: db, logger: logger}
}

// Enabled reports whether a backing store is available.
func (c *Cache) Enabled() bool {
	return c != nil && c.db != nil
}

// Get returns the value for key, or nil when the key is absent or the cache
// is disabled. Read errors are logged, never returned.
func (c *Cache) Get(key string) []byte {
	if !c.Enabled() {
		return nil
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Printf("get %s: %v", key, err)
		}
		return nil
	}
	return value
}

// Set stores value under key. A disabled cache ignores the write.
func (c *Cache) Set(key string, value []byte) {
	if !c.Enabled() {
		return
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		c.logger.Printf("set %s: %v", key, err)
	}
}

// Close releases the backing store.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Close()
}
