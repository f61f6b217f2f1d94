package pagestore

import (
	"math/bits"

	"go.uber.org/zap"
)

// HashCursor is a position in a HashTable: a directory slot, a bucket of
// its chain and an index in that bucket. A negative index ^i is an
// insertion point before entry i.
type HashCursor struct {
	table *HashTable

	slot       int
	bucket     int64
	prevBucket int64
	index      int64
}

func (c *HashCursor) reset() {
	c.slot = -1
	c.bucket = nullPage
	c.prevBucket = nullPage
	c.index = -1
}

func (c *HashCursor) seekSlot(slot int) {
	c.slot = slot
	c.bucket = c.table.directory[slot]
	c.prevBucket = nullPage
}

func (c *HashCursor) jumpToNextBucket() {
	c.prevBucket = c.bucket
	c.bucket = c.table.nextBucket(c.bucket)
}

func (c *HashCursor) entryCount() int64 {
	if c.bucket == nullPage {
		return 0
	}
	return c.table.bucketCount(c.bucket)
}

// Seek positions the cursor at (hash, key), or at the insertion point for
// it. A miss past the end of a full bucket continues in the next bucket of
// the chain.
func (c *HashCursor) Seek(hash, key uint64) {
	c.seekSlot(c.table.slotFor(hash))
	c.seekInChain(hash, key)
}

func (c *HashCursor) seekInChain(hash, key uint64) {
	for {
		if c.bucket == nullPage {
			c.index = ^0
			return
		}
		c.search(hash, key)
		n := c.entryCount()
		if n < c.table.maxEntries || c.index != ^n {
			return
		}
		c.jumpToNextBucket()
	}
}

func (c *HashCursor) search(hash, key uint64) {
	t := c.table
	low, high := int64(0), c.entryCount()-1
	for low <= high {
		mid := int64(uint64(low+high) >> 1)
		switch cmp := t.compareEntry(c.bucket, mid, hash, key); {
		case cmp < 0:
			low = mid + 1
		case cmp > 0:
			high = mid - 1
		default:
			c.index = mid
			return
		}
	}
	c.index = ^low
}

// seekHashInChain moves to the insertion point before the first entry of
// the chain whose hash is not below hash.
func (c *HashCursor) seekHashInChain(hash uint64) {
	t := c.table
	for c.bucket != nullPage {
		n := c.entryCount()
		low, high := int64(0), n
		for low < high {
			mid := int64(uint64(low+high) >> 1)
			if t.entryHash(c.bucket, mid) < hash {
				low = mid + 1
			} else {
				high = mid
			}
		}
		c.index = ^low
		if low < n || n < t.maxEntries {
			return
		}
		c.jumpToNextBucket()
	}
	c.index = ^0
}

// ElementFound reports whether the cursor is at an existing entry.
func (c *HashCursor) ElementFound() bool {
	return c.bucket != nullPage && c.index >= 0 && c.index < c.entryCount()
}

func (c *HashCursor) checkPositioned() {
	if !c.ElementFound() {
		panic(ErrNotPositionedError)
	}
}

// Key returns the key at the cursor. It panics unless ElementFound.
func (c *HashCursor) Key() uint64 {
	c.checkPositioned()
	return c.table.entryKey(c.bucket, c.index)
}

// Value returns the value at the cursor. It panics unless ElementFound.
func (c *HashCursor) Value() uint64 {
	c.checkPositioned()
	return c.table.entryValue(c.bucket, c.index)
}

// Hash returns the hash of the entry at the cursor. It panics unless
// ElementFound.
func (c *HashCursor) Hash() uint64 {
	c.checkPositioned()
	return c.table.entryHash(c.bucket, c.index)
}

// SetValue replaces the value at the cursor.
func (c *HashCursor) SetValue(value uint64) error {
	if err := c.table.checkWritable(); err != nil {
		return err
	}
	if !c.ElementFound() {
		return ErrNotPositionedError
	}
	c.table.writeValue(c.bucket, c.index, value)
	return nil
}

// Next advances to the following entry in directory order and reports
// whether there is one. An unpositioned cursor starts at the first slot.
func (c *HashCursor) Next() bool {
	t := c.table
	if c.index < -1 {
		c.index = ^c.index - 1
	}
	for {
		c.index++
		switch {
		case c.bucket == nullPage:
			// end of a chain, or not started yet
			if c.slot+1 >= len(t.directory) {
				return false
			}
			c.seekSlot(c.slot + 1)
			c.index = -1
		case c.index >= c.entryCount():
			c.jumpToNextBucket()
			c.index = -1
		default:
			return true
		}
	}
}

// linkBucket appends a fresh bucket at the cursor's end-of-chain position.
func (c *HashCursor) linkBucket(bucket int64) {
	t := c.table
	if c.bucket != nullPage {
		panic(newErrorf(ErrProblem, "linking a bucket over bucket %d", c.bucket))
	}
	c.bucket = bucket
	c.replaceBucketWith(bucket)
	t.setNextBucket(bucket, nullPage)
	t.setBucketCount(bucket, 0)
}

// replaceBucketWith points the link that leads to the cursor's bucket at
// bucket instead.
func (c *HashCursor) replaceBucketWith(bucket int64) {
	if c.prevBucket == nullPage {
		c.table.directory[c.slot] = bucket
	} else {
		c.table.setNextBucket(c.prevBucket, bucket)
	}
}

// chainFull reports whether every bucket from the cursor to the end of the
// chain is full, so an insert here needs a new bucket.
func (c *HashCursor) chainFull() bool {
	t := c.table
	for b := c.bucket; b != nullPage; b = t.nextBucket(b) {
		if t.bucketCount(b) < t.maxEntries {
			return false
		}
	}
	return true
}

// Insert adds (hash, key, value) at the cursor's insertion point. The cursor
// must come from Seek with the same hash and key. If the bucket is full its
// largest entry moves to the head of the next bucket, repeating down the
// chain. The cursor is unpositioned afterwards.
func (c *HashCursor) Insert(hash, key, value uint64) error {
	t := c.table
	if err := t.checkWritable(); err != nil {
		return err
	}
	if c.slot < 0 {
		return newErrorf(ErrNotPositioned, "insert without seeking")
	}
	if c.index >= 0 {
		return ErrKeyExistError
	}
	if hash&^t.hashMask != 0 {
		return newErrorf(ErrBadHash, "hash %#x, width %d bytes", hash, t.hashWidth)
	}
	if t.hashWidth == 0 && t.hasher.Hash(key) != hash {
		return newErrorf(ErrBadHash, "hash %#x is not the hash of key %d", hash, key)
	}

	spare := nullPage
	if c.chainFull() {
		var err error
		if spare, err = t.allocateBucket(); err != nil {
			return err
		}
	}

	for {
		at := ^c.index
		n := c.entryCount()
		if n < t.maxEntries {
			if c.bucket == nullPage {
				c.linkBucket(spare)
				spare = nullPage
			}
			t.moveEntries(c.bucket, at, c.bucket, at+1, n-at)
			t.setBucketCount(c.bucket, n+1)
			t.writeEntry(c.bucket, at, hash, key, value)
			break
		}
		if at == n {
			panic(newErrorf(ErrCorrupted, "insert point after a full bucket"))
		}
		th, tk, tv := t.entryHash(c.bucket, n-1), t.entryKey(c.bucket, n-1), t.entryValue(c.bucket, n-1)
		t.moveEntries(c.bucket, at, c.bucket, at+1, n-1-at)
		t.writeEntry(c.bucket, at, hash, key, value)

		// the displaced entry is the smallest of the rest of the chain
		c.jumpToNextBucket()
		hash, key, value = th, tk, tv
		c.index = ^0
	}
	c.reset()
	if spare != nullPage {
		return t.freeBucketPage(spare)
	}
	return nil
}

// Remove deletes the entry at the cursor and refills the gap from the
// following buckets of the chain. The cursor is unpositioned afterwards.
func (c *HashCursor) Remove() error {
	t := c.table
	if err := t.checkWritable(); err != nil {
		return err
	}
	if !c.ElementFound() {
		return ErrNotPositionedError
	}
	defer c.reset()

	n := c.entryCount()
	if n == 1 {
		return c.freeBucket()
	}
	t.moveEntries(c.bucket, c.index+1, c.bucket, c.index, n-c.index-1)
	t.setBucketCount(c.bucket, n-1)
	c.jumpToNextBucket()
	return c.backfill()
}

// freeBucket unlinks and frees the cursor's bucket and moves to its
// successor.
func (c *HashCursor) freeBucket() error {
	next := c.table.nextBucket(c.bucket)
	c.replaceBucketWith(next)
	if err := c.table.freeBucketPage(c.bucket); err != nil {
		return err
	}
	c.bucket = next
	return nil
}

// backfill pulls entries from the cursor's bucket and its successors into
// the free space of the previous bucket, freeing drained buckets.
func (c *HashCursor) backfill() error {
	t := c.table
	for c.bucket != nullPage {
		if c.prevBucket == nullPage {
			panic(newErrorf(ErrProblem, "backfill without a previous bucket"))
		}
		prevCount := t.bucketCount(c.prevBucket)
		n := c.entryCount()
		shift := min(n, t.maxEntries-prevCount)
		if shift == 0 {
			return nil
		}
		t.moveEntries(c.bucket, 0, c.prevBucket, prevCount, shift)
		t.setBucketCount(c.prevBucket, prevCount+shift)
		t.moveEntries(c.bucket, shift, c.bucket, 0, n-shift)
		if n == shift {
			if err := c.freeBucket(); err != nil {
				return err
			}
			continue
		}
		t.setBucketCount(c.bucket, n-shift)
		c.jumpToNextBucket()
	}
	return nil
}

// splitBucket moves the entries of the slot at the cursor that belong to the
// new daughter slot into it and grows the directory by one slot.
func (c *HashCursor) splitBucket() error {
	t := c.table
	if c.slot != t.splitIndex {
		panic(newErrorf(ErrProblem, "split of slot %d, split index %d", c.slot, t.splitIndex))
	}
	daughter := c.slot | 1<<t.lowDepth
	if daughter != len(t.directory) {
		panic(newErrorf(ErrCorrupted, "daughter slot %d, directory size %d", daughter, len(t.directory)))
	}

	// find the first entry addressed to the daughter before touching anything
	pivotBucket, start, spare := nullPage, int64(0), nullPage
	if c.bucket != nullPage {
		// smallest hash addressed to the daughter
		c.seekHashInChain(bits.Reverse64(uint64(daughter)))
		pivotBucket = c.bucket
		start = ^c.index
		if start > 0 && start < c.entryCount() {
			var err error
			if spare, err = t.allocateBucket(); err != nil {
				return err
			}
		}
	}

	t.directory = append(t.directory, nullPage)
	t.splitIndex++
	if t.splitIndex == 1<<t.lowDepth {
		t.splitIndex = 0
		t.lowDepth++
	}
	t.logger.Debug("hash slot split",
		zap.Int("slot", c.slot), zap.Int("daughter", daughter), zap.Int("depth", t.lowDepth))

	switch {
	case pivotBucket == nullPage:
		// empty slot
	case start == 0:
		// hand the rest of the chain over
		c.replaceBucketWith(nullPage)
		t.directory[daughter] = pivotBucket
	case start < t.bucketCount(pivotBucket):
		moved := t.bucketCount(pivotBucket) - start
		c.seekSlot(daughter)
		c.linkBucket(spare)
		t.moveEntries(pivotBucket, start, c.bucket, 0, moved)
		t.setBucketCount(c.bucket, moved)
		t.setBucketCount(pivotBucket, start)
		// the buckets after the pivot continue the daughter chain
		t.setNextBucket(c.bucket, t.nextBucket(pivotBucket))
		t.setNextBucket(pivotBucket, nullPage)
		c.jumpToNextBucket()
		return c.backfill()
	default:
		// every entry stays
	}
	return nil
}

// Close releases the cursor for reuse by the table. The cursor must not be
// used afterwards.
func (c *HashCursor) Close() {
	c.reset()
	c.table.spare.Store(c)
}
