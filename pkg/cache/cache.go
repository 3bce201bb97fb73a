// Package cache keeps encoded analysis results in memory, keyed by method
// fingerprint, with LRU eviction and msgpack persistence between runs.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// formatVersion is bumped whenever the persisted layout changes; files with
// another version are ignored on load.
const formatVersion = 1

// Entry is one cached result.
type Entry struct {
	Key        string    `msgpack:"key"`
	Value      []byte    `msgpack:"value"`
	AccessedAt time.Time `msgpack:"accessed_at"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// Stats reports cache usage.
type Stats struct {
	Length       int   `json:"length" yaml:"length"`
	CurrentBytes int64 `json:"current_bytes" yaml:"current_bytes"`
	HitCount     int64 `json:"hit_count" yaml:"hit_count"`
	MissCount    int64 `json:"miss_count" yaml:"miss_count"`
	Evictions    int64 `json:"evictions" yaml:"evictions"`
}

// HitRate returns hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// Options configures an LRU.
type Options struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// MaxBytes bounds the summed value sizes. 0 means unlimited.
	MaxBytes int64

	// OnEvict is called for entries dropped to make room.
	OnEvict func(key string)
}

// LRU is a size-bounded least-recently-used cache safe for concurrent use
// by batch workers.
type LRU struct {
	mu           sync.Mutex
	items        map[string]*node
	order        recency
	maxSize      int
	maxBytes     int64
	currentBytes int64
	onEvict      func(key string)

	hits, misses, evictions int64
}

// node links an entry into the recency list.
type node struct {
	Entry
	prev, next *node
}

// recency is a doubly-linked list, most recently used at head.
type recency struct {
	head, tail *node
	len        int
}

func (r *recency) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		r.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		r.tail = n.prev
	}
	n.prev, n.next = nil, nil
	r.len--
}

func (r *recency) pushFront(n *node) {
	n.prev = nil
	n.next = r.head
	if r.head != nil {
		r.head.prev = n
	}
	r.head = n
	if r.tail == nil {
		r.tail = n
	}
	r.len++
}

func (r *recency) touch(n *node) {
	if r.head == n {
		return
	}
	r.unlink(n)
	r.pushFront(n)
}

// New creates an empty LRU.
func New(opts Options) *LRU {
	return &LRU{
		items:    make(map[string]*node),
		maxSize:  opts.MaxSize,
		maxBytes: opts.MaxBytes,
		onEvict:  opts.OnEvict,
	}
}

// Get returns the value stored under key.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	n.AccessedAt = time.Now()
	c.order.touch(n)
	return n.Value, true
}

// Set stores value under key, evicting least recently used entries when a
// bound is exceeded.
func (c *LRU) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if n, ok := c.items[key]; ok {
		c.currentBytes += int64(len(value) - len(n.Value))
		n.Value = value
		n.AccessedAt = now
		c.order.touch(n)
		c.evict()
		return
	}

	n := &node{Entry: Entry{Key: key, Value: value, AccessedAt: now, CreatedAt: now}}
	c.items[key] = n
	c.order.pushFront(n)
	c.currentBytes += int64(len(value))
	c.evict()
}

// Delete removes key.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.remove(n)
	}
}

// Clear drops every entry and resets the counters.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*node)
	c.order = recency{}
	c.currentBytes = 0
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the usage counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Length:       len(c.items),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hits,
		MissCount:    c.misses,
		Evictions:    c.evictions,
	}
}

func (c *LRU) remove(n *node) {
	c.order.unlink(n)
	delete(c.items, n.Key)
	c.currentBytes -= int64(len(n.Value))
}

func (c *LRU) evict() {
	for c.order.len > 0 && c.full() {
		n := c.order.tail
		c.remove(n)
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(n.Key)
		}
	}
}

func (c *LRU) full() bool {
	if c.maxSize > 0 && c.order.len > c.maxSize {
		return true
	}
	return c.maxBytes > 0 && c.currentBytes > c.maxBytes
}

// snapshot is the persisted form: entries from least to most recently used.
type snapshot struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Save writes the cache to w using msgpack.
func (c *LRU) Save(w io.Writer) error {
	c.mu.Lock()
	data := snapshot{Version: formatVersion, Entries: make([]Entry, 0, len(c.items))}
	for n := c.order.tail; n != nil; n = n.prev {
		data.Entries = append(data.Entries, n.Entry)
	}
	c.mu.Unlock()

	if err := msgpack.NewEncoder(w).Encode(&data); err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	return nil
}

// Load replaces the cache contents with a snapshot read from r. Snapshots of
// another format version are skipped without error.
func (c *LRU) Load(r io.Reader) error {
	var data snapshot
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	if data.Version != formatVersion {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*node)
	c.order = recency{}
	c.currentBytes = 0
	for _, e := range data.Entries {
		n := &node{Entry: e}
		c.items[e.Key] = n
		c.order.pushFront(n)
		c.currentBytes += int64(len(e.Value))
	}
	c.evict()
	return nil
}

// PersistToFile saves the cache to path, creating parent directories. The
// file is replaced atomically.
func PersistToFile(c *LRU, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// LoadFromFile loads the cache from path. A missing file is not an error.
func LoadFromFile(c *LRU, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}
