package pagestore

import (
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Giulio2002/pagestore/buffer"
)

// BTree is an ordered index of fixed-width keys and values whose blocks live
// in pages handed out by a PageAllocator.
//
// Block layouts, with the item count stored in the fewest bytes that can
// hold the block's maximum entry count:
//
//	branch: [ptr (key value? ptr)* count]
//	leaf:   [(key value)* next? count]
//
// Each block holds between 1 and capacity entries once Balance returns. The
// capacity leaves room for one extra entry so an insert can land before the
// block is split.
//
// A BTree is not safe for concurrent use. Only one cursor may mutate it at a
// time, and mutations invalidate the position of every other cursor.
type BTree struct {
	pages  PageAllocator
	buf    buffer.Buffer
	codec  Codec
	logger *zap.Logger

	blockSize int64
	ptrSize   int
	storeNext bool
	leafOnly  bool // B+-tree: values only in leaves

	keySize         int64
	leafEntrySize   int64
	branchEntrySize int64
	leafCountSize   int
	branchCountSize int
	leafCapacity    int64
	branchCapacity  int64
	maxPage         int64
	nullRaw         uint64

	root       int64
	levelCount int

	// err is set when a structural change could not complete. The tree is
	// still readable but refuses further mutation until Clear.
	err error

	spare  atomic.Pointer[Cursor]
	closed bool
}

// NewBTree creates an empty tree storing entries with codec in pages from
// pages. cfg.BlockSize must match the allocator page size. The tree owns
// pages exclusively: Clear frees every page on it.
func NewBTree(pages PageAllocator, codec Codec, cfg BTreeConfig) (*BTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BlockSize != pages.PageSize() {
		return nil, newErrorf(ErrBadConfig, "block size %d differs from page size %d", cfg.BlockSize, pages.PageSize())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	t := &BTree{
		pages:     pages,
		buf:       pages.Buffer(),
		codec:     codec,
		logger:    cfg.Logger,
		blockSize: int64(cfg.BlockSize),
		ptrSize:   cfg.PointerSize,
		storeNext: cfg.StoreNextPointer,
		leafOnly:  cfg.EntryMustBeInLeaf,
		keySize:   int64(codec.KeySize()),
		root:      nullPage,
		nullRaw:   widthMask(cfg.PointerSize),
	}
	t.leafEntrySize = t.keySize + int64(codec.ValueSize())
	t.branchEntrySize = t.keySize
	if !t.leafOnly {
		t.branchEntrySize = t.leafEntrySize
	}
	ptr := int64(t.ptrSize)

	t.leafCountSize = requiredBytes(uint64(t.blockSize / t.leafEntrySize))
	t.branchCountSize = requiredBytes(uint64(t.blockSize / (t.branchEntrySize + ptr)))
	leafHeader := int64(t.leafCountSize)
	if t.storeNext {
		leafHeader += ptr
	}
	t.leafCapacity = (t.blockSize-leafHeader)/t.leafEntrySize - 1
	t.branchCapacity = (t.blockSize-int64(t.branchCountSize)-ptr)/(t.branchEntrySize+ptr) - 1
	if t.leafCapacity < 2 || t.branchCapacity < 2 {
		return nil, newErrorf(ErrBadConfig, "block size %d too small: leaf capacity %d, branch capacity %d",
			t.blockSize, t.leafCapacity, t.branchCapacity)
	}

	if t.ptrSize >= 8 {
		t.maxPage = math.MaxInt64
	} else {
		// One value is reserved for NULL.
		t.maxPage = int64(1)<<(8*t.ptrSize) - 2
	}
	return t, nil
}

// LeafCapacity returns the maximum number of entries in a leaf.
func (t *BTree) LeafCapacity() int64 { return t.leafCapacity }

// BranchCapacity returns the maximum number of pivots in a branch.
func (t *BTree) BranchCapacity() int64 { return t.branchCapacity }

// LevelCount returns the height of the tree; 0 for an empty tree.
func (t *BTree) LevelCount() int { return t.levelCount }

// Root returns the root page, or -1 for an empty tree.
func (t *BTree) Root() int64 { return t.root }

// MaxPage returns the largest page number the pointer width can address.
func (t *BTree) MaxPage() int64 { return t.maxPage }

// Err returns the error that stopped the last structural change, if any.
func (t *BTree) Err() error { return t.err }

// Clear removes every entry and frees all pages of the allocator, including
// pages the tree did not allocate.
func (t *BTree) Clear() {
	t.root = nullPage
	t.levelCount = 0
	t.err = nil
	t.pages.FreeAllPages()
}

// Close marks the tree unusable. The allocator stays open; its owner closes
// it.
func (t *BTree) Close() error {
	t.closed = true
	t.levelCount = 0
	t.root = nullPage
	return nil
}

func (t *BTree) checkWritable() error {
	if t.closed {
		return ErrClosedError
	}
	return t.err
}

// pages

func (t *BTree) base(page int64) int64 {
	if page == nullPage {
		panic(newErrorf(ErrCorrupted, "dereferenced NULL page"))
	}
	return page * t.blockSize
}

// allocatePage allocates a block page, refusing pages the pointer width
// cannot address.
func (t *BTree) allocatePage() (int64, error) {
	page, err := t.pages.AllocatePage()
	if err != nil {
		return nullPage, WrapError(ErrProblem, err)
	}
	t.buf = t.pages.Buffer()
	if page > t.maxPage {
		if err := t.pages.FreePage(page); err != nil {
			return nullPage, WrapError(ErrDoubleFree, err)
		}
		t.logger.Warn("btree page space exhausted",
			zap.Int("pointerSize", t.ptrSize), zap.Int64("maxPage", t.maxPage))
		return nullPage, newErrorf(ErrPointerTooSmall, "page %d exceeds %d-byte pointer range", page, t.ptrSize)
	}
	return page, nil
}

func (t *BTree) freePage(page int64) error {
	if err := t.pages.FreePage(page); err != nil {
		return WrapError(ErrDoubleFree, err)
	}
	return nil
}

func (t *BTree) readPtr(addr int64) int64 {
	raw := uget(t.buf, addr, t.ptrSize)
	if raw == t.nullRaw {
		return nullPage
	}
	if raw > uint64(t.maxPage) {
		panic(newErrorf(ErrCorrupted, "page pointer %#x out of range", raw))
	}
	return int64(raw)
}

func (t *BTree) writePtr(addr int64, page int64) {
	if page == nullPage {
		uset(t.buf, addr, t.ptrSize, t.nullRaw)
		return
	}
	uset(t.buf, addr, t.ptrSize, uint64(page))
}

// block headers

func (t *BTree) leafCount(page int64) int64 {
	return int64(uget(t.buf, t.base(page)+t.blockSize-int64(t.leafCountSize), t.leafCountSize))
}

func (t *BTree) setLeafCount(page, n int64) {
	uset(t.buf, t.base(page)+t.blockSize-int64(t.leafCountSize), t.leafCountSize, uint64(n))
}

func (t *BTree) branchCount(page int64) int64 {
	return int64(uget(t.buf, t.base(page)+t.blockSize-int64(t.branchCountSize), t.branchCountSize))
}

func (t *BTree) setBranchCount(page, n int64) {
	uset(t.buf, t.base(page)+t.blockSize-int64(t.branchCountSize), t.branchCountSize, uint64(n))
}

func (t *BTree) nextLeaf(page int64) int64 {
	return t.readPtr(t.base(page) + t.blockSize - int64(t.leafCountSize) - int64(t.ptrSize))
}

func (t *BTree) setNextLeaf(page, next int64) {
	t.writePtr(t.base(page)+t.blockSize-int64(t.leafCountSize)-int64(t.ptrSize), next)
}

// entries

func (t *BTree) checkLeafIndex(i int64) {
	// capacity itself is allowed for the overflow slot
	if i < 0 || i > t.leafCapacity {
		panic(newErrorf(ErrProblem, "leaf index %d outside [0, %d]", i, t.leafCapacity))
	}
}

func (t *BTree) checkBranchIndex(i int64) {
	if i < 0 || i > t.branchCapacity {
		panic(newErrorf(ErrProblem, "branch index %d outside [0, %d]", i, t.branchCapacity))
	}
}

func (t *BTree) leafAddr(page, i int64) int64 {
	return t.base(page) + i*t.leafEntrySize
}

func (t *BTree) branchAddr(page, i int64) int64 {
	return t.base(page) + int64(t.ptrSize) + i*(t.branchEntrySize+int64(t.ptrSize))
}

func (t *BTree) leafKey(page, i int64) uint64 {
	t.checkLeafIndex(i)
	return t.codec.ReadKey(t.buf, t.leafAddr(page, i))
}

func (t *BTree) leafValue(page, i int64) uint64 {
	t.checkLeafIndex(i)
	return t.codec.ReadValue(t.buf, t.leafAddr(page, i)+t.keySize)
}

func (t *BTree) writeLeafEntry(page, i int64, key, value uint64) {
	t.checkLeafIndex(i)
	addr := t.leafAddr(page, i)
	t.codec.WriteKey(t.buf, addr, key)
	t.codec.WriteValue(t.buf, addr+t.keySize, value)
}

func (t *BTree) branchKey(page, i int64) uint64 {
	t.checkBranchIndex(i)
	return t.codec.ReadKey(t.buf, t.branchAddr(page, i))
}

func (t *BTree) branchValue(page, i int64) uint64 {
	t.checkBranchIndex(i)
	return t.codec.ReadValue(t.buf, t.branchAddr(page, i)+t.keySize)
}

func (t *BTree) writeBranchEntry(page, i int64, key, value uint64) {
	t.checkBranchIndex(i)
	addr := t.branchAddr(page, i)
	t.codec.WriteKey(t.buf, addr, key)
	if !t.leafOnly {
		t.codec.WriteValue(t.buf, addr+t.keySize, value)
	}
}

// prevChild returns the child pointer left of pivot i.
func (t *BTree) prevChild(page, i int64) int64 {
	return t.readPtr(t.branchAddr(page, i) - int64(t.ptrSize))
}

// nextChild returns the child pointer right of pivot i.
func (t *BTree) nextChild(page, i int64) int64 {
	return t.prevChild(page, i+1)
}

func (t *BTree) setPrevChild(page, i, child int64) {
	t.writePtr(t.branchAddr(page, i)-int64(t.ptrSize), child)
}

// search returns the index of key in the block, or the complement of its
// insertion point.
func (t *BTree) search(leaf bool, page int64, key uint64) int64 {
	var n int64
	if leaf {
		n = t.leafCount(page)
	} else {
		n = t.branchCount(page)
	}
	low, high := int64(0), n-1
	for low <= high {
		mid := int64(uint64(low+high) >> 1)
		var pivot uint64
		if leaf {
			pivot = t.leafKey(page, mid)
		} else {
			pivot = t.branchKey(page, mid)
		}
		switch c := t.codec.Compare(pivot, key); {
		case c < 0:
			low = mid + 1
		case c > 0:
			high = mid - 1
		default:
			return mid
		}
	}
	return ^low
}

// block mutation

func (t *BTree) copyLeafEntries(from, fromIdx, to, toIdx, count int64) {
	if count == 0 {
		return
	}
	if fromIdx < 0 || fromIdx+count > t.leafCapacity+1 || toIdx < 0 || toIdx+count > t.leafCapacity+1 {
		panic(newErrorf(ErrProblem, "leaf copy [%d,+%d) -> %d out of range", fromIdx, count, toIdx))
	}
	start := t.leafAddr(from, fromIdx)
	end := t.leafAddr(from, fromIdx+count)
	t.buf.CopyFrom(t.buf, start, t.leafAddr(to, toIdx), end-start)
}

// copyBranchEntries copies count pivots together with their next pointers.
// With copyPrev the prev pointer of the first pivot is copied as well.
func (t *BTree) copyBranchEntries(from, fromIdx, to, toIdx, count int64, copyPrev bool) {
	if fromIdx < 0 || fromIdx+count > t.branchCapacity+1 || toIdx < 0 || toIdx+count > t.branchCapacity+1 {
		panic(newErrorf(ErrProblem, "branch copy [%d,+%d) -> %d out of range", fromIdx, count, toIdx))
	}
	start := t.branchAddr(from, fromIdx)
	end := t.branchAddr(from, fromIdx+count)
	dest := t.branchAddr(to, toIdx)
	if copyPrev {
		start -= int64(t.ptrSize)
		dest -= int64(t.ptrSize)
	}
	t.buf.CopyFrom(t.buf, start, dest, end-start)
}

func (t *BTree) leafInsert(page, at int64, key, value uint64) {
	n := t.leafCount(page)
	if at < 0 || at > n {
		panic(newErrorf(ErrProblem, "leaf insert at %d of %d", at, n))
	}
	if n > t.leafCapacity {
		panic(newErrorf(ErrProblem, "leaf insert into block that must split"))
	}
	t.copyLeafEntries(page, at, page, at+1, n-at)
	t.writeLeafEntry(page, at, key, value)
	t.setLeafCount(page, n+1)
}

func (t *BTree) leafRemoveAt(page, at int64) {
	n := t.leafCount(page)
	if at < 0 || at >= n {
		panic(newErrorf(ErrProblem, "leaf remove at %d of %d", at, n))
	}
	t.copyLeafEntries(page, at+1, page, at, n-at-1)
	t.setLeafCount(page, n-1)
}

func (t *BTree) branchInsert(page, at int64, key, value uint64, prev, next int64) {
	n := t.branchCount(page)
	if at < 0 || at > n {
		panic(newErrorf(ErrProblem, "branch insert at %d of %d", at, n))
	}
	if n > t.branchCapacity {
		panic(newErrorf(ErrProblem, "branch insert into block that must split"))
	}
	start := t.branchAddr(page, at)
	t.buf.CopyFrom(t.buf, start, t.branchAddr(page, at+1), t.branchAddr(page, n)-start)
	t.writeBranchEntry(page, at, key, value)
	t.setPrevChild(page, at, prev)
	t.setPrevChild(page, at+1, next)
	t.setBranchCount(page, n+1)
}

// splitLeaf moves the entries from pivot on (after pivot in B-tree mode) into
// right and truncates left to pivot entries.
func (t *BTree) splitLeaf(left, right, pivot int64) {
	copyStart := pivot
	if !t.leafOnly {
		copyStart++
	}
	rightCount := t.leafCount(left) - copyStart
	t.copyLeafEntries(left, copyStart, right, 0, rightCount)
	t.setLeafCount(right, rightCount)
	t.setLeafCount(left, pivot)
	if t.storeNext {
		t.setNextLeaf(right, t.nextLeaf(left))
		t.setNextLeaf(left, right)
	}
}

// splitBranch moves the pivots after pivot, with their child pointers, into
// right and truncates left to pivot entries.
func (t *BTree) splitBranch(left, right, pivot int64) {
	rightCount := t.branchCount(left) - pivot - 1
	t.copyBranchEntries(left, pivot+1, right, 0, rightCount, true)
	t.setBranchCount(right, rightCount)
	t.setBranchCount(left, pivot)
}

// Cursor returns a cursor positioned nowhere. Close it to make it available
// for reuse.
func (t *BTree) Cursor() *Cursor {
	c := t.spare.Swap(nil)
	if c == nil {
		c = &Cursor{tree: t}
	}
	c.reset()
	return c
}

// Get returns the value stored for key.
func (t *BTree) Get(key uint64) (uint64, bool) {
	c := t.Cursor()
	defer c.Close()
	c.DescendToKey(key)
	if !c.ElementFound() {
		return 0, false
	}
	return c.Value(), true
}

// Put stores value under key. It reports whether key was newly inserted.
func (t *BTree) Put(key, value uint64) (bool, error) {
	if err := t.checkWritable(); err != nil {
		return false, err
	}
	c := t.Cursor()
	defer c.Close()
	c.DescendToKey(key)
	if c.ElementFound() {
		return false, c.SetValue(value)
	}
	if err := c.SimpleInsert(key, value); err != nil {
		return false, err
	}
	return true, c.Balance()
}

// Delete removes key. It reports whether key was present.
func (t *BTree) Delete(key uint64) (bool, error) {
	if err := t.checkWritable(); err != nil {
		return false, err
	}
	c := t.Cursor()
	defer c.Close()
	c.DescendToKey(key)
	if !c.ElementFound() {
		return false, nil
	}
	if err := c.SimpleRemove(); err != nil {
		return false, err
	}
	return true, c.Balance()
}

// First returns the smallest entry.
func (t *BTree) First() (key, value uint64, ok bool) {
	c := t.Cursor()
	defer c.Close()
	c.DescendToStart()
	if !c.Next() {
		return 0, 0, false
	}
	return c.Key(), c.Value(), true
}

// Last returns the largest entry, which is always the last entry of the
// rightmost leaf.
func (t *BTree) Last() (key, value uint64, ok bool) {
	if t.root == nullPage {
		return 0, 0, false
	}
	page := t.root
	for level := 0; level < t.levelCount-1; level++ {
		page = t.prevChild(page, t.branchCount(page))
	}
	n := t.leafCount(page)
	return t.leafKey(page, n-1), t.leafValue(page, n-1), true
}

// TreeStats describes the shape of a tree.
type TreeStats struct {
	Levels         int
	Branches       int64
	Leaves         int64
	Entries        int64
	LeafCapacity   int64
	BranchCapacity int64
}

// Stats walks the tree and counts blocks and entries.
func (t *BTree) Stats() TreeStats {
	s := TreeStats{Levels: t.levelCount, LeafCapacity: t.leafCapacity, BranchCapacity: t.branchCapacity}
	if t.root != nullPage {
		t.collectStats(t.root, 0, &s)
	}
	return s
}

func (t *BTree) collectStats(page int64, level int, s *TreeStats) {
	if level == t.levelCount-1 {
		s.Leaves++
		s.Entries += t.leafCount(page)
		return
	}
	s.Branches++
	n := t.branchCount(page)
	if !t.leafOnly {
		s.Entries += n
	}
	for i := int64(0); i <= n; i++ {
		t.collectStats(t.prevChild(page, i), level+1, s)
	}
}
