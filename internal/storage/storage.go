// Package storage caches the last-indexed content of every file.
//
// Small contents live in a bounded in-memory LRU; large contents, and
// whatever the LRU evicts, live on disk under the storage directory. An
// entry stays in the tier it was placed in until it is deleted, so a
// read never has to consult both tiers.
package storage

import (
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/logging"
)

// Storage is the last-indexed content cache consumed by the update pipeline.
type Storage interface {
	// Get returns the cached content for id, or "" when nothing is cached.
	Get(id fileid.FileID) (string, error)
	// Put caches content for id. Empty content deletes the entry.
	Put(id fileid.FileID, content string) error
	// Delete drops the entry for id.
	Delete(id fileid.FileID) error
	Stats() Stats
	Close() error
}

// Config holds the tiering parameters.
type Config struct {
	Dir                  string
	MemoryEntries        int
	FilesystemThreshold  int
	CompressionThreshold int
}

// Stats reports entry counts per tier.
type Stats struct {
	Memory int `json:"memory"`
	Disk   int `json:"disk"`
}

type tier uint8

const (
	tierMemory tier = iota + 1
	tierDisk
)

type entry struct {
	data       []byte
	compressed bool
}

// Cache is the two-tier Storage implementation.
type Cache struct {
	cfg    Config
	ser    Serializer
	logger *slog.Logger

	mu        sync.Mutex
	memory    *lru.Cache[fileid.FileID, entry]
	disk      *diskTier
	placement map[fileid.FileID]tier
	// evicting is false while entries leave the LRU on purpose, so the
	// eviction callback only spills genuine capacity evictions.
	evicting bool
	closed   bool
}

var _ Storage = (*Cache)(nil)

// New opens the cache, taking ownership of cfg.Dir.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = 1
	}

	disk, err := openDiskTier(cfg.Dir)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:       cfg,
		ser:       NewSerializer(cfg.CompressionThreshold),
		logger:    logging.Component(logger, "storage"),
		disk:      disk,
		placement: make(map[fileid.FileID]tier),
		evicting:  true,
	}
	memory, err := lru.NewWithEvict[fileid.FileID, entry](cfg.MemoryEntries, c.spill)
	if err != nil {
		_ = disk.close()
		return nil, fserrors.InternalError("failed to create memory tier", err)
	}
	c.memory = memory
	return c, nil
}

// spill runs inside memory.Add with c.mu held.
func (c *Cache) spill(id fileid.FileID, e entry) {
	if !c.evicting {
		return
	}
	if err := c.disk.write(id, e.data, e.compressed); err != nil {
		delete(c.placement, id)
		c.logger.Warn("failed to spill evicted content to disk",
			append([]any{slog.String("file_id", string(id))}, fserrors.LogAttrs(err)...)...)
		return
	}
	c.placement[id] = tierDisk
}

func (c *Cache) Get(id fileid.FileID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errClosed()
	}

	switch c.placement[id] {
	case tierMemory:
		e, ok := c.memory.Get(id)
		if !ok {
			return "", nil
		}
		return c.ser.Decode(e.data, e.compressed)
	case tierDisk:
		data, compressed, ok, err := c.disk.read(id)
		if err != nil || !ok {
			return "", err
		}
		return c.ser.Decode(data, compressed)
	default:
		return "", nil
	}
}

func (c *Cache) Put(id fileid.FileID, content string) error {
	if content == "" {
		return c.Delete(id)
	}
	data, compressed, err := c.ser.Encode(content)
	if err != nil {
		return fserrors.StorageError("failed to encode content", err).WithDetail("file_id", string(id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}

	placed, ok := c.placement[id]
	if !ok {
		placed = tierMemory
		if c.cfg.FilesystemThreshold > 0 && len(content) >= c.cfg.FilesystemThreshold {
			placed = tierDisk
		}
	}

	if placed == tierDisk {
		if err := c.disk.write(id, data, compressed); err != nil {
			return err
		}
		c.placement[id] = tierDisk
		return nil
	}

	c.placement[id] = tierMemory
	c.memory.Add(id, entry{data: data, compressed: compressed})
	return nil
}

func (c *Cache) Delete(id fileid.FileID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}

	placed, ok := c.placement[id]
	if !ok {
		return nil
	}
	delete(c.placement, id)
	if placed == tierDisk {
		return c.disk.remove(id)
	}
	c.evicting = false
	c.memory.Remove(id)
	c.evicting = true
	return nil
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st Stats
	for _, t := range c.placement {
		if t == tierDisk {
			st.Disk++
		} else {
			st.Memory++
		}
	}
	return st
}

// Reset drops every entry and keeps the cache open.
func (c *Cache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}

	var firstErr error
	for id, t := range c.placement {
		if t != tierDisk {
			continue
		}
		if err := c.disk.remove(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.evicting = false
	c.memory.Purge()
	c.evicting = true
	c.placement = make(map[fileid.FileID]tier)
	return firstErr
}

// Close drops every entry and removes the storage directory.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.evicting = false
	c.memory.Purge()
	c.placement = nil
	return c.disk.close()
}

func errClosed() error {
	return fserrors.New(fserrors.ErrCodeStorageWrite, "storage is closed", nil)
}
