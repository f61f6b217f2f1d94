package pagestore

import (
	"io"
	"iter"

	"github.com/Giulio2002/pagestore/keyhash"
)

// OrderedMap is a map of fixed-width keys to values kept in key order in a
// BTree. It owns its allocator: Close closes it when it implements
// io.Closer.
type OrderedMap struct {
	tree  *BTree
	pages PageAllocator
	n     int
}

// NewOrderedMap creates an empty ordered map in pages.
func NewOrderedMap(pages PageAllocator, codec Codec, cfg BTreeConfig) (*OrderedMap, error) {
	tree, err := NewBTree(pages, codec, cfg)
	if err != nil {
		return nil, err
	}
	return &OrderedMap{tree: tree, pages: pages}, nil
}

// Tree returns the underlying tree.
func (m *OrderedMap) Tree() *BTree { return m.tree }

// Len returns the number of entries.
func (m *OrderedMap) Len() int { return m.n }

// Get returns the value of key.
func (m *OrderedMap) Get(key uint64) (uint64, bool) {
	return m.tree.Get(key)
}

// GetOr returns the value of key, or def if absent.
func (m *OrderedMap) GetOr(key, def uint64) uint64 {
	if v, ok := m.tree.Get(key); ok {
		return v
	}
	return def
}

// Contains reports whether key is present.
func (m *OrderedMap) Contains(key uint64) bool {
	_, ok := m.tree.Get(key)
	return ok
}

// Put sets the value of key.
func (m *OrderedMap) Put(key, value uint64) error {
	added, err := m.tree.Put(key, value)
	if added {
		m.n++
	}
	return err
}

// Remove deletes key and reports whether it was present.
func (m *OrderedMap) Remove(key uint64) (bool, error) {
	removed, err := m.tree.Delete(key)
	if removed {
		m.n--
	}
	return removed, err
}

// Min returns the entry with the smallest key.
func (m *OrderedMap) Min() (key, value uint64, ok bool) {
	return m.tree.First()
}

// Max returns the entry with the largest key.
func (m *OrderedMap) Max() (key, value uint64, ok bool) {
	return m.tree.Last()
}

// Range calls fn for every entry in key order until fn returns false. The
// map must not be modified during the walk.
func (m *OrderedMap) Range(fn func(key, value uint64) bool) {
	c := m.tree.Cursor()
	defer c.Close()
	c.DescendToStart()
	for c.Next() {
		if !fn(c.Key(), c.Value()) {
			return
		}
	}
}

// All returns an iterator over the entries in key order.
func (m *OrderedMap) All() iter.Seq2[uint64, uint64] {
	return m.Range
}

// Keys returns an iterator over the keys in order.
func (m *OrderedMap) Keys() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		m.Range(func(k, _ uint64) bool { return yield(k) })
	}
}

// Clear removes every entry.
func (m *OrderedMap) Clear() {
	m.tree.Clear()
	m.n = 0
}

// CheckInvariants verifies the tree and the entry count.
func (m *OrderedMap) CheckInvariants() error {
	if err := m.tree.CheckInvariants(); err != nil {
		return err
	}
	if s := m.tree.Stats(); s.Entries != int64(m.n) {
		return newErrorf(ErrCorrupted, "map holds %d entries, tree %d", m.n, s.Entries)
	}
	return nil
}

// Close releases the tree and the allocator.
func (m *OrderedMap) Close() error {
	m.n = 0
	if err := m.tree.Close(); err != nil {
		return err
	}
	return closePages(m.pages)
}

func closePages(pages PageAllocator) error {
	if c, ok := pages.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// HashMap is an unordered map of fixed-width keys to values in a
// HashTable. It keeps the directory sized for its entry count at the
// configured load factor. Like OrderedMap it owns its allocator.
type HashMap struct {
	table  *HashTable
	pages  PageAllocator
	hasher keyhash.Hasher
	n      int
}

// NewHashMap creates an empty hash map in pages. A nil cfg.Hasher is
// replaced by SipHash with random keys. Hashes are cut to the bits the
// configured hash width stores.
func NewHashMap(pages PageAllocator, codec Codec, cfg HashConfig) (*HashMap, error) {
	if cfg.Hasher == nil {
		h, err := keyhash.NewSipHasher()
		if err != nil {
			return nil, WrapError(ErrProblem, err)
		}
		cfg.Hasher = h
	}
	mask := ^uint64(0)
	if cfg.HashWidth > 0 && cfg.HashWidth < 8 {
		mask = ^(^uint64(0) >> (8 * cfg.HashWidth))
	}
	hasher := keyhash.Masked{Hasher: cfg.Hasher, Mask: mask}
	cfg.Hasher = hasher

	table, err := NewHashTable(pages, codec, cfg)
	if err != nil {
		return nil, err
	}
	return &HashMap{table: table, pages: pages, hasher: hasher}, nil
}

// Table returns the underlying table.
func (m *HashMap) Table() *HashTable { return m.table }

// Len returns the number of entries.
func (m *HashMap) Len() int { return m.n }

func (m *HashMap) seek(key uint64) (*HashCursor, uint64) {
	h := m.hasher.Hash(key)
	c := m.table.Cursor()
	c.Seek(h, key)
	return c, h
}

// Get returns the value of key.
func (m *HashMap) Get(key uint64) (uint64, bool) {
	c, _ := m.seek(key)
	defer c.Close()
	if !c.ElementFound() {
		return 0, false
	}
	return c.Value(), true
}

// GetOr returns the value of key, or def if absent.
func (m *HashMap) GetOr(key, def uint64) uint64 {
	if v, ok := m.Get(key); ok {
		return v
	}
	return def
}

// Contains reports whether key is present.
func (m *HashMap) Contains(key uint64) bool {
	_, ok := m.Get(key)
	return ok
}

// Put sets the value of key.
func (m *HashMap) Put(key, value uint64) error {
	if err := m.table.EnsureCapacity(1); err != nil {
		return err
	}
	c, h := m.seek(key)
	defer c.Close()
	if c.ElementFound() {
		return c.SetValue(value)
	}
	if err := c.Insert(h, key, value); err != nil {
		return err
	}
	m.n++
	return m.table.EnsureCapacity(int64(m.n))
}

// Remove deletes key and reports whether it was present.
func (m *HashMap) Remove(key uint64) (bool, error) {
	c, _ := m.seek(key)
	defer c.Close()
	if !c.ElementFound() {
		return false, nil
	}
	if err := c.Remove(); err != nil {
		return false, err
	}
	m.n--
	return true, nil
}

// Range calls fn for every entry in directory order until fn returns false.
// The map must not be modified during the walk.
func (m *HashMap) Range(fn func(key, value uint64) bool) {
	c := m.table.Cursor()
	defer c.Close()
	for c.Next() {
		if !fn(c.Key(), c.Value()) {
			return
		}
	}
}

// All returns an iterator over the entries.
func (m *HashMap) All() iter.Seq2[uint64, uint64] {
	return m.Range
}

// Keys returns an iterator over the keys.
func (m *HashMap) Keys() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		m.Range(func(k, _ uint64) bool { return yield(k) })
	}
}

// Clear removes every entry.
func (m *HashMap) Clear() {
	m.table.Clear()
	m.n = 0
}

// CheckInvariants verifies the table and the entry count.
func (m *HashMap) CheckInvariants() error {
	if err := m.table.CheckInvariants(); err != nil {
		return err
	}
	if s := m.table.Stats(); s.Entries != int64(m.n) {
		return newErrorf(ErrCorrupted, "map holds %d entries, table %d", m.n, s.Entries)
	}
	return nil
}

// Close releases the table and the allocator.
func (m *HashMap) Close() error {
	m.n = 0
	if err := m.table.Close(); err != nil {
		return err
	}
	return closePages(m.pages)
}
