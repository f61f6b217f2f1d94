package pagestore

import (
	"math"
	"math/bits"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Giulio2002/pagestore/buffer"
)

// HashTable is a linear hash table of fixed-width entries in bucket pages
// handed out by a PageAllocator.
//
// A hash addresses a directory slot by its top bits: slot =
// reverse(hash) & (1<<depth - 1). Every slot heads a chain of buckets
// holding the slot's entries sorted by (hash, key). Every bucket except the
// last of a chain is full.
//
// Bucket layout, with the count stored in the fewest bytes that can hold
// the bucket's maximum entry count:
//
//	[(hash? key value)* count next]
//
// The directory grows one slot at a time through SplitStep. Slots below
// splitIndex and at or above 1<<lowDepth use depth lowDepth+1, the others
// lowDepth.
type HashTable struct {
	pages  PageAllocator
	buf    buffer.Buffer
	codec  Codec
	hasher Hasher
	logger *zap.Logger

	loadFactor float64
	bucketSize int64
	ptrSize    int
	hashWidth  int
	hashMask   uint64 // bits a hash may carry
	keySize    int64
	entrySize  int64
	countBytes int
	maxEntries int64
	maxBucket  int64
	nullRaw    uint64

	directory  []int64
	splitIndex int
	lowDepth   int

	spare  atomic.Pointer[HashCursor]
	closed bool
}

// NewHashTable creates an empty table storing entries with codec in pages
// from pages. cfg.BucketSize must match the allocator page size. The table
// owns pages exclusively: Clear frees every page on it.
func NewHashTable(pages PageAllocator, codec Codec, cfg HashConfig) (*HashTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BucketSize != pages.PageSize() {
		return nil, newErrorf(ErrBadConfig, "bucket size %d differs from page size %d", cfg.BucketSize, pages.PageSize())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	t := &HashTable{
		pages:      pages,
		buf:        pages.Buffer(),
		codec:      codec,
		hasher:     cfg.Hasher,
		logger:     cfg.Logger,
		loadFactor: cfg.LoadFactor,
		bucketSize: int64(cfg.BucketSize),
		ptrSize:    cfg.PointerSize,
		hashWidth:  cfg.HashWidth,
		keySize:    int64(codec.KeySize()),
		nullRaw:    widthMask(cfg.PointerSize),
		directory:  []int64{nullPage},
	}
	// stored hashes keep their top hashWidth bytes
	t.hashMask = ^uint64(0)
	if t.hashWidth > 0 && t.hashWidth < 8 {
		t.hashMask = ^(^uint64(0) >> (8 * t.hashWidth))
	}
	t.entrySize = int64(t.hashWidth) + t.keySize + int64(codec.ValueSize())
	ptr := int64(t.ptrSize)
	t.countBytes = requiredBytes(uint64((t.bucketSize - ptr) / t.entrySize))
	t.maxEntries = (t.bucketSize - ptr - int64(t.countBytes)) / t.entrySize
	if t.maxEntries < 1 {
		return nil, newErrorf(ErrBadConfig, "bucket size %d cannot hold a %d-byte entry", t.bucketSize, t.entrySize)
	}

	if t.ptrSize >= 8 {
		t.maxBucket = math.MaxInt64
	} else {
		t.maxBucket = int64(1)<<(8*t.ptrSize) - 2
	}
	return t, nil
}

// BucketCapacity returns the number of entries a bucket holds.
func (t *HashTable) BucketCapacity() int64 { return t.maxEntries }

// DirectorySize returns the number of directory slots.
func (t *HashTable) DirectorySize() int { return len(t.directory) }

// HashMask returns the bits a hash may have set for the configured hash
// width.
func (t *HashTable) HashMask() uint64 { return t.hashMask }

// Clear removes every entry, frees all pages and shrinks the directory to a
// single slot.
func (t *HashTable) Clear() {
	t.splitIndex = 0
	t.lowDepth = 0
	t.directory = append(t.directory[:0], nullPage)
	t.pages.FreeAllPages()
}

// Close marks the table unusable. The allocator stays open.
func (t *HashTable) Close() error {
	t.closed = true
	t.directory = []int64{nullPage}
	t.splitIndex = 0
	t.lowDepth = 0
	return nil
}

func (t *HashTable) checkWritable() error {
	if t.closed {
		return ErrClosedError
	}
	return nil
}

// slotFor returns the directory slot of hash.
func (t *HashTable) slotFor(hash uint64) int {
	slot := slotIndex(t.lowDepth, hash)
	if slot < t.splitIndex {
		slot = slotIndex(t.lowDepth+1, hash)
	}
	return slot
}

func slotIndex(depth int, hash uint64) int {
	return int(bits.Reverse64(hash) & (1<<depth - 1))
}

// pages

func (t *HashTable) base(bucket int64) int64 {
	if bucket == nullPage {
		panic(newErrorf(ErrCorrupted, "dereferenced NULL bucket"))
	}
	return bucket * t.bucketSize
}

func (t *HashTable) allocateBucket() (int64, error) {
	page, err := t.pages.AllocatePage()
	if err != nil {
		return nullPage, WrapError(ErrProblem, err)
	}
	t.buf = t.pages.Buffer()
	if page > t.maxBucket {
		if err := t.pages.FreePage(page); err != nil {
			return nullPage, WrapError(ErrDoubleFree, err)
		}
		t.logger.Warn("hash bucket space exhausted",
			zap.Int("pointerSize", t.ptrSize), zap.Int64("maxBucket", t.maxBucket))
		return nullPage, newErrorf(ErrPointerTooSmall, "bucket %d exceeds %d-byte pointer range", page, t.ptrSize)
	}
	return page, nil
}

func (t *HashTable) freeBucketPage(bucket int64) error {
	if err := t.pages.FreePage(bucket); err != nil {
		return WrapError(ErrDoubleFree, err)
	}
	return nil
}

func (t *HashTable) nextBucket(bucket int64) int64 {
	raw := uget(t.buf, t.base(bucket)+t.bucketSize-int64(t.ptrSize), t.ptrSize)
	if raw == t.nullRaw {
		return nullPage
	}
	if raw > uint64(t.maxBucket) {
		panic(newErrorf(ErrCorrupted, "bucket pointer %#x out of range", raw))
	}
	return int64(raw)
}

func (t *HashTable) setNextBucket(bucket, next int64) {
	addr := t.base(bucket) + t.bucketSize - int64(t.ptrSize)
	if next == nullPage {
		uset(t.buf, addr, t.ptrSize, t.nullRaw)
		return
	}
	uset(t.buf, addr, t.ptrSize, uint64(next))
}

func (t *HashTable) bucketCount(bucket int64) int64 {
	addr := t.base(bucket) + t.bucketSize - int64(t.ptrSize) - int64(t.countBytes)
	return int64(uget(t.buf, addr, t.countBytes))
}

func (t *HashTable) setBucketCount(bucket, n int64) {
	addr := t.base(bucket) + t.bucketSize - int64(t.ptrSize) - int64(t.countBytes)
	uset(t.buf, addr, t.countBytes, uint64(n))
}

// entries

func (t *HashTable) entryAddr(bucket, i int64) int64 {
	return t.base(bucket) + i*t.entrySize
}

func (t *HashTable) entryHash(bucket, i int64) uint64 {
	if t.hashWidth == 0 {
		return t.hasher.Hash(t.entryKey(bucket, i))
	}
	return bits.Reverse64(uget(t.buf, t.entryAddr(bucket, i), t.hashWidth))
}

func (t *HashTable) entryKey(bucket, i int64) uint64 {
	return t.codec.ReadKey(t.buf, t.entryAddr(bucket, i)+int64(t.hashWidth))
}

func (t *HashTable) entryValue(bucket, i int64) uint64 {
	return t.codec.ReadValue(t.buf, t.entryAddr(bucket, i)+int64(t.hashWidth)+t.keySize)
}

func (t *HashTable) writeEntry(bucket, i int64, hash, key, value uint64) {
	addr := t.entryAddr(bucket, i)
	if t.hashWidth > 0 {
		uset(t.buf, addr, t.hashWidth, bits.Reverse64(hash))
	}
	addr += int64(t.hashWidth)
	t.codec.WriteKey(t.buf, addr, key)
	t.codec.WriteValue(t.buf, addr+t.keySize, value)
}

func (t *HashTable) writeValue(bucket, i int64, value uint64) {
	t.codec.WriteValue(t.buf, t.entryAddr(bucket, i)+int64(t.hashWidth)+t.keySize, value)
}

// moveEntries copies n entries with memmove semantics.
func (t *HashTable) moveEntries(from, fromIdx, to, toIdx, n int64) {
	if n == 0 {
		return
	}
	t.buf.CopyFrom(t.buf, t.entryAddr(from, fromIdx), t.entryAddr(to, toIdx), n*t.entrySize)
}

// compareEntry orders entry i of bucket against (hash, key).
func (t *HashTable) compareEntry(bucket, i int64, hash, key uint64) int {
	h := t.entryHash(bucket, i)
	switch {
	case h < hash:
		return -1
	case h > hash:
		return 1
	}
	return t.codec.Compare(t.entryKey(bucket, i), key)
}

// Cursor returns an unpositioned cursor. Close it to make it available for
// reuse.
func (t *HashTable) Cursor() *HashCursor {
	c := t.spare.Swap(nil)
	if c == nil {
		c = &HashCursor{table: t}
	}
	c.reset()
	return c
}

// SplitStep splits the directory slot at splitIndex, appending one slot.
func (t *HashTable) SplitStep() error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	c := t.Cursor()
	defer c.Close()
	c.seekSlot(t.splitIndex)
	return c.splitBucket()
}

// ExpandToFullLoadCapacity splits slots until the directory has enough
// buckets to hold entries entries with every bucket full.
func (t *HashTable) ExpandToFullLoadCapacity(entries int64) error {
	required := (entries-1)/t.maxEntries + 1
	for required > int64(len(t.directory)) {
		if err := t.SplitStep(); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCapacity sizes the directory for n entries at the configured load
// factor.
func (t *HashTable) EnsureCapacity(n int64) error {
	return t.ExpandToFullLoadCapacity(int64(float64(n) / t.loadFactor))
}

// HashStats describes the shape of a table.
type HashStats struct {
	Slots          int
	LowDepth       int
	SplitIndex     int
	Buckets        int64
	Entries        int64
	LongestChain   int
	BucketCapacity int64
}

// Stats walks every chain and counts buckets and entries.
func (t *HashTable) Stats() HashStats {
	s := HashStats{
		Slots:          len(t.directory),
		LowDepth:       t.lowDepth,
		SplitIndex:     t.splitIndex,
		BucketCapacity: t.maxEntries,
	}
	for _, b := range t.directory {
		chain := 0
		for ; b != nullPage; b = t.nextBucket(b) {
			chain++
			s.Buckets++
			s.Entries += t.bucketCount(b)
		}
		s.LongestChain = max(s.LongestChain, chain)
	}
	return s
}
