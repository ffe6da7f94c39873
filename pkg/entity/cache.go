// Package entity holds the per-feature in-memory record lists that are loaded in
// bulk, kept current by change events, and patched optimistically by local actions.
//
// Authoritative writes (Load, Upsert, Remove, Apply) always win over optimistic
// patches: a patch or local insert made before an authoritative write to the same
// key can no longer be reverted, and Load discards every pending patch.
//
// A bulk query that races change events goes through BeginLoad and LoadFrom:
// results land in the order their queries started, and writes applied while a
// query was in flight are replayed on top of its result.
package entity

import (
	"slices"
	"sync"
)

// Keyed is implemented by every cached record. Key is the deduplication identity.
type Keyed interface {
	Key() string
}

// Op is the kind of an incremental change
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Patch is a handle to one optimistic change, used to roll it back
type Patch[T Keyed] struct {
	key     string
	id      uint64
	authGen uint64
	existed bool
	prev    T
}

// Key returns the key the patch changed
func (p Patch[T]) Key() string { return p.key }

// Cache is a concurrency-safe ordered list of records deduplicated by key
type Cache[T Keyed] struct {
	order func(a, b T) int

	mu      sync.RWMutex
	items   []T
	index   map[string]int
	hidden  map[string]struct{}
	authGen map[string]uint64
	pending map[string][]uint64
	nextID  uint64
	version uint64
	changed chan struct{}

	writes    uint64
	loadSeq   uint64
	loadedSeq uint64
	inflight  map[uint64]uint64
	journal   []write[T]
}

// LoadTicket marks the start of one bulk query
type LoadTicket struct {
	seq  uint64
	mark uint64
}

type write[T Keyed] struct {
	at   uint64
	op   Op
	key  string
	item T
}

// New creates a cache sorted by order. A nil order keeps arrival order.
func New[T Keyed](order func(a, b T) int) *Cache[T] {
	return &Cache[T]{
		order:    order,
		index:    make(map[string]int),
		hidden:   make(map[string]struct{}),
		authGen:  make(map[string]uint64),
		pending:  make(map[string][]uint64),
		changed:  make(chan struct{}, 1),
		inflight: make(map[uint64]uint64),
	}
}

// Load replaces the whole list. Duplicate keys keep the last occurrence.
// Queries begun before Load can no longer land through LoadFrom.
func (c *Cache[T]) Load(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replace(items)
	c.loadedSeq = c.loadSeq
	c.bump()
}

// BeginLoad is called right before a bulk query is sent. Every ticket must end
// in LoadFrom or EndLoad.
func (c *Cache[T]) BeginLoad() LoadTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadSeq++
	t := LoadTicket{seq: c.loadSeq, mark: c.writes}
	c.inflight[t.seq] = t.mark
	return t
}

// LoadFrom replaces the list with the result of t's query, then replays the
// authoritative writes made since t began. It reports false, changing nothing,
// when a query that started later has already landed.
func (c *Cache[T]) LoadFrom(t LoadTicket, items []T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLocked(t)

	if t.seq <= c.loadedSeq {
		return false
	}
	c.replace(items)
	for _, w := range c.journal {
		if w.at <= t.mark {
			continue
		}
		c.authoritative(w.key)
		if w.op == OpDelete {
			c.drop(w.key)
		} else {
			c.put(w.item)
		}
	}
	c.loadedSeq = t.seq
	c.bump()
	return true
}

// Stale reports whether a query that started after t has already landed
func (c *Cache[T]) Stale(t LoadTicket) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return t.seq <= c.loadedSeq
}

// EndLoad releases a ticket whose query failed or whose result was discarded.
// Ending a ticket twice is a no-op.
func (c *Cache[T]) EndLoad(t LoadTicket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(t)
}

func (c *Cache[T]) endLocked(t LoadTicket) {
	delete(c.inflight, t.seq)
	if len(c.inflight) == 0 {
		c.journal = nil
		return
	}
	oldest := c.writes
	for _, mark := range c.inflight {
		oldest = min(oldest, mark)
	}
	keep := 0
	for _, w := range c.journal {
		if w.at > oldest {
			c.journal[keep] = w
			keep++
		}
	}
	c.journal = c.journal[:keep]
}

// record notes an authoritative write for queries still in flight
func (c *Cache[T]) record(op Op, key string, item T) {
	c.writes++
	if len(c.inflight) > 0 {
		c.journal = append(c.journal, write[T]{at: c.writes, op: op, key: key, item: item})
	}
}

func (c *Cache[T]) replace(items []T) {
	c.items = c.items[:0]
	c.index = make(map[string]int, len(items))
	for _, item := range items {
		k := item.Key()
		if i, ok := c.index[k]; ok {
			c.items[i] = item
			continue
		}
		c.index[k] = len(c.items)
		c.items = append(c.items, item)
	}
	for k := range c.index {
		c.authGen[k]++
	}
	c.pending = make(map[string][]uint64)
	c.resort()
}

// Upsert merges an authoritative record: insert if absent, replace if present
func (c *Cache[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authoritative(item.Key())
	c.record(OpUpdate, item.Key(), item)
	c.put(item)
	c.bump()
}

// Remove deletes key authoritatively. Removing an absent key is a no-op.
func (c *Cache[T]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authoritative(key)
	var zero T
	c.record(OpDelete, key, zero)
	if c.drop(key) {
		c.bump()
	}
}

// Apply merges one incremental change event
func (c *Cache[T]) Apply(op Op, item T) {
	switch op {
	case OpDelete:
		c.Remove(item.Key())
	default:
		c.Upsert(item)
	}
}

// Insert adds item optimistically. The returned patch removes it again on Revert.
func (c *Cache[T]) Insert(item T) Patch[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := item.Key()
	p := c.newPatch(k)
	c.put(item)
	c.bump()
	return p
}

// Patch applies fn to the cached record for key optimistically. It returns false
// when key is not cached.
func (c *Cache[T]) Patch(key string, fn func(T) T) (Patch[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[key]; !ok {
		return Patch[T]{}, false
	}
	p := c.newPatch(key)
	c.put(fn(p.prev))
	c.bump()
	return p, true
}

// Discard removes key optimistically. Revert puts the record back.
func (c *Cache[T]) Discard(key string) (Patch[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[key]; !ok {
		return Patch[T]{}, false
	}
	p := c.newPatch(key)
	c.drop(key)
	c.bump()
	return p, true
}

// Revert rolls back p. It reports false, changing nothing, when an authoritative
// write to the key happened after the patch or the patch was already reverted.
// Reverting a patch also discards patches made on top of it.
func (c *Cache[T]) Revert(p Patch[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authGen[p.key] != p.authGen {
		return false
	}
	stack := c.pending[p.key]
	pos := slices.Index(stack, p.id)
	if pos < 0 {
		return false
	}
	c.pending[p.key] = stack[:pos]
	if len(c.pending[p.key]) == 0 {
		delete(c.pending, p.key)
	}

	if p.existed {
		c.put(p.prev)
	} else {
		c.drop(p.key)
	}
	c.bump()
	return true
}

// Pending reports whether key has unreverted optimistic patches
func (c *Cache[T]) Pending(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending[key]) > 0
}

// Hide filters key out of Items for the life of the cache, surviving Load
func (c *Cache[T]) Hide(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hidden[key]; ok {
		return
	}
	c.hidden[key] = struct{}{}
	c.bump()
}

// Hidden reports whether key was hidden
func (c *Cache[T]) Hidden(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.hidden[key]
	return ok
}

// Items returns a copy of the visible records in order
func (c *Cache[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if _, hidden := c.hidden[item.Key()]; hidden {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Get returns the cached record for key, hidden or not
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Len returns the number of visible records
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.items)
	for k := range c.hidden {
		if _, ok := c.index[k]; ok {
			n--
		}
	}
	return n
}

// Version increases on every change
func (c *Cache[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Changed fires after one or more changes. Signals coalesce.
func (c *Cache[T]) Changed() <-chan struct{} {
	return c.changed
}

func (c *Cache[T]) newPatch(key string) Patch[T] {
	c.nextID++
	p := Patch[T]{key: key, id: c.nextID, authGen: c.authGen[key]}
	if i, ok := c.index[key]; ok {
		p.existed = true
		p.prev = c.items[i]
	}
	c.pending[key] = append(c.pending[key], p.id)
	return p
}

func (c *Cache[T]) authoritative(key string) {
	c.authGen[key]++
	delete(c.pending, key)
}

func (c *Cache[T]) put(item T) {
	k := item.Key()
	if i, ok := c.index[k]; ok {
		c.items[i] = item
	} else {
		c.index[k] = len(c.items)
		c.items = append(c.items, item)
	}
	c.resort()
}

func (c *Cache[T]) drop(key string) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	c.reindex()
	return true
}

func (c *Cache[T]) resort() {
	if c.order != nil {
		slices.SortStableFunc(c.items, c.order)
	}
	c.reindex()
}

func (c *Cache[T]) reindex() {
	clear(c.index)
	for i, item := range c.items {
		c.index[item.Key()] = i
	}
}

func (c *Cache[T]) bump() {
	c.version++
	select {
	case c.changed <- struct{}{}:
	default:
	}
}
