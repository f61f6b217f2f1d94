package pagestore

import (
	"go.uber.org/zap"
)

// Cursor is a position in a BTree, recorded as the path of blocks from the
// root and the index taken in each.
//
// At every level an index i >= 0 selects entry i of the block. A negative
// index ^i is an insertion point: the cursor sits before entry i, and in a
// branch it has descended into the child left of pivot i.
//
// A cursor must be re-positioned with DescendToKey or DescendToStart after
// any other cursor has modified the tree.
type Cursor struct {
	tree *BTree

	trace      []int64
	traceIndex []int64
	level      int

	// saved position, see mark
	trace2      []int64
	traceIndex2 []int64
	level2      int
	marked      bool
}

func resize(s []int64, n int) []int64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int64, n)
}

// reset moves the cursor off the tree and sizes its path for the current
// height.
func (c *Cursor) reset() {
	if c.marked {
		panic(newErrorf(ErrProblem, "cursor reset while marked"))
	}
	n := c.tree.levelCount
	c.trace = resize(c.trace, n)
	c.traceIndex = resize(c.traceIndex, n)
	c.trace2 = resize(c.trace2, n)
	c.traceIndex2 = resize(c.traceIndex2, n)
	c.level = -1
}

func (c *Cursor) mark() {
	if c.marked {
		panic(newErrorf(ErrProblem, "cursor already marked"))
	}
	copy(c.trace2, c.trace)
	copy(c.traceIndex2, c.traceIndex)
	c.level2 = c.level
	c.marked = true
}

// resetToMark restores the marked position and keeps the mark.
func (c *Cursor) resetToMark() {
	if !c.marked {
		panic(newErrorf(ErrProblem, "cursor not marked"))
	}
	copy(c.trace, c.trace2)
	copy(c.traceIndex, c.traceIndex2)
	c.level = c.level2
}

func (c *Cursor) discardMark() {
	if !c.marked {
		panic(newErrorf(ErrProblem, "cursor not marked"))
	}
	c.marked = false
}

func (c *Cursor) inLeaf() bool {
	return c.level == c.tree.levelCount-1
}

func (c *Cursor) itemCount() int64 {
	if c.inLeaf() {
		return c.tree.leafCount(c.trace[c.level])
	}
	return c.tree.branchCount(c.trace[c.level])
}

func (c *Cursor) capacity() int64 {
	if c.inLeaf() {
		return c.tree.leafCapacity
	}
	return c.tree.branchCapacity
}

func (c *Cursor) prevChildPtr() int64 {
	ix := c.traceIndex[c.level]
	if c.inLeaf() || ix < 0 {
		panic(newErrorf(ErrProblem, "no previous child at level %d index %d", c.level, ix))
	}
	return c.tree.prevChild(c.trace[c.level], ix)
}

func (c *Cursor) nextChildPtr() int64 {
	ix := c.traceIndex[c.level]
	if c.inLeaf() || ix < -1 {
		panic(newErrorf(ErrProblem, "no next child at level %d index %d", c.level, ix))
	}
	return c.tree.nextChild(c.trace[c.level], ix)
}

// DescendToKey positions the cursor at key, or at the insertion point for key
// in a leaf if it is absent. In a B-tree the cursor stops at the branch
// holding key as a pivot.
func (c *Cursor) DescendToKey(key uint64) {
	c.reset()
	c.descendToKey(key)
}

func (c *Cursor) descendToKey(key uint64) {
	t := c.tree
	for !c.inLeaf() && (c.level == -1 || c.traceIndex[c.level] < 0 || t.leafOnly) {
		if c.level == -1 {
			c.level = 0
			c.trace[0] = t.root
		} else {
			c.level++
			ix := c.traceIndex[c.level-1]
			if ix < 0 {
				c.trace[c.level] = t.prevChild(c.trace[c.level-1], ^ix)
			} else {
				// B+-tree: equal keys live right of the pivot
				c.trace[c.level] = t.nextChild(c.trace[c.level-1], ix)
			}
		}
		c.traceIndex[c.level] = t.search(c.inLeaf(), c.trace[c.level], key)
	}
}

// descendToImmediateLeftLeaf moves from a found pivot to the insertion point
// after the last entry of the rightmost leaf left of it.
func (c *Cursor) descendToImmediateLeftLeaf() {
	if !c.ElementFound() {
		panic(newErrorf(ErrProblem, "left descent without a selected pivot"))
	}
	for !c.inLeaf() {
		c.trace[c.level+1] = c.prevChildPtr()
		c.traceIndex[c.level] = ^c.traceIndex[c.level]
		c.level++
		c.traceIndex[c.level] = c.itemCount()
	}
	c.traceIndex[c.level] = ^c.traceIndex[c.level]
}

// descendToImmediateRightLeaf moves to the insertion point before the first
// entry of the leftmost leaf right of the current position.
func (c *Cursor) descendToImmediateRightLeaf() {
	for !c.inLeaf() {
		if c.level == -1 {
			c.trace[0] = c.tree.root
		} else {
			c.trace[c.level+1] = c.nextChildPtr()
			c.traceIndex[c.level] = ^(c.traceIndex[c.level] + 1)
		}
		c.level++
		c.traceIndex[c.level] = -1
	}
}

// DescendToStart positions the cursor before the first entry; Next then
// walks the tree in order.
func (c *Cursor) DescendToStart() {
	c.reset()
	c.descendToImmediateRightLeaf()
}

// ElementFound reports whether the cursor is at an existing entry.
func (c *Cursor) ElementFound() bool {
	return c.level >= 0 && c.traceIndex[c.level] >= 0
}

func (c *Cursor) checkPositioned() {
	if c.level < 0 {
		panic(ErrNotPositionedError)
	}
	if ix := c.traceIndex[c.level]; ix < 0 || ix >= c.itemCount() {
		panic(ErrNotPositionedError)
	}
}

// Key returns the key at the cursor. It panics unless ElementFound.
func (c *Cursor) Key() uint64 {
	c.checkPositioned()
	if c.inLeaf() {
		return c.tree.leafKey(c.trace[c.level], c.traceIndex[c.level])
	}
	return c.tree.branchKey(c.trace[c.level], c.traceIndex[c.level])
}

// Value returns the value at the cursor. It panics unless ElementFound.
func (c *Cursor) Value() uint64 {
	c.checkPositioned()
	if c.inLeaf() {
		return c.tree.leafValue(c.trace[c.level], c.traceIndex[c.level])
	}
	return c.tree.branchValue(c.trace[c.level], c.traceIndex[c.level])
}

func (c *Cursor) valueOrZero() uint64 {
	if c.tree.leafOnly {
		return 0
	}
	return c.Value()
}

// SetValue replaces the value at the cursor.
func (c *Cursor) SetValue(value uint64) error {
	if err := c.tree.checkWritable(); err != nil {
		return err
	}
	if !c.ElementFound() || c.traceIndex[c.level] >= c.itemCount() {
		return ErrNotPositionedError
	}
	key := c.Key()
	if c.inLeaf() {
		c.tree.writeLeafEntry(c.trace[c.level], c.traceIndex[c.level], key, value)
	} else {
		c.tree.writeBranchEntry(c.trace[c.level], c.traceIndex[c.level], key, value)
	}
	return nil
}

// SimpleInsert inserts an entry at the cursor's insertion point without
// restoring block capacities. The cursor must come from DescendToKey with
// the same key. Call Balance afterwards.
func (c *Cursor) SimpleInsert(key, value uint64) error {
	t := c.tree
	if err := t.checkWritable(); err != nil {
		return err
	}
	if c.level == -1 {
		if t.levelCount != 0 {
			return newErrorf(ErrNotPositioned, "insert into non-empty tree without descending")
		}
		return c.insertRoot(key, value)
	}
	if c.ElementFound() {
		return ErrKeyExistError
	}
	if !c.inLeaf() {
		return newErrorf(ErrNotPositioned, "insert point is not in a leaf")
	}
	if c.itemCount() > t.leafCapacity {
		return newErrorf(ErrProblem, "leaf overflows, balance before inserting")
	}
	c.insertHere(key, value)
	return nil
}

func (c *Cursor) insertRoot(key, value uint64) error {
	t := c.tree
	root, err := t.allocatePage()
	if err != nil {
		return err
	}
	t.root = root
	if t.storeNext {
		t.setNextLeaf(root, nullPage)
	}
	t.setLeafCount(root, 1)
	t.writeLeafEntry(root, 0, key, value)
	t.levelCount = 1

	c.reset()
	c.level = 0
	c.trace[0] = root
	c.traceIndex[0] = 0
	return nil
}

func (c *Cursor) insertHere(key, value uint64) {
	c.tree.leafInsert(c.trace[c.level], ^c.traceIndex[c.level], key, value)
}

func (c *Cursor) ascendToNextParent() bool {
	c.level--
	if c.level < 0 {
		return false
	}
	if c.traceIndex[c.level] < 0 {
		c.traceIndex[c.level] = ^c.traceIndex[c.level]
	} else {
		if !c.tree.leafOnly {
			panic(newErrorf(ErrProblem, "ascended past a selected pivot"))
		}
		c.traceIndex[c.level]++
	}
	return true
}

func (c *Cursor) jumpToNextLeaf() bool {
	t := c.tree
	if t.storeNext {
		next := t.nextLeaf(c.trace[c.level])
		if next == nullPage {
			return false
		}
		c.trace[c.level] = next
		c.traceIndex[c.level] = -1
		return true
	}
	for {
		if !c.ascendToNextParent() {
			return false
		}
		if c.traceIndex[c.level] < c.itemCount() {
			break
		}
	}
	c.descendToImmediateRightLeaf()
	return true
}

func (c *Cursor) jumpToPreviousLeaf() bool {
	for {
		if !c.ascendToNextParent() {
			return false
		}
		if c.traceIndex[c.level] != 0 {
			break
		}
	}
	c.traceIndex[c.level]--
	c.descendToImmediateLeftLeaf()
	return true
}

// Next advances to the following entry in key order and reports whether
// there is one. From an insertion point it moves to the first entry after
// it. The cursor must have been positioned first.
func (c *Cursor) Next() bool {
	t := c.tree
	if t.levelCount == 0 || c.level < 0 {
		return false
	}

	if c.inLeaf() {
		if ix := c.traceIndex[c.level]; ix < -1 {
			// insertion point: the next entry is the one it precedes
			c.traceIndex[c.level] = ^ix - 1
		}
		c.traceIndex[c.level]++
		if c.traceIndex[c.level] < c.itemCount() {
			return true
		}
		if t.leafOnly {
			if !c.jumpToNextLeaf() {
				return false
			}
			c.traceIndex[c.level]++
			return true
		}
		// climb to the pivot following this leaf
		for {
			if c.level <= 0 {
				return false
			}
			c.level--
			if c.traceIndex[c.level] >= 0 {
				panic(newErrorf(ErrProblem, "leaf reached through a selected pivot"))
			}
			if ^c.traceIndex[c.level] < c.itemCount() {
				break
			}
		}
		c.traceIndex[c.level] = ^c.traceIndex[c.level]
		return true
	}

	// just visited a pivot, or positioned before the start
	if c.traceIndex[c.level] >= c.itemCount() {
		return false
	}
	c.descendToImmediateRightLeaf()
	c.traceIndex[c.level]++
	return true
}

// SimpleRemove removes the entry at the cursor without restoring block
// capacities. Call Balance afterwards.
//
// Removing a pivot in a B-tree replaces it with its neighbour from the
// fuller of the two adjacent leaves.
func (c *Cursor) SimpleRemove() error {
	if err := c.tree.checkWritable(); err != nil {
		return err
	}
	if !c.ElementFound() {
		return ErrNotPositionedError
	}
	c.simpleRemove()
	return nil
}

func (c *Cursor) simpleRemove() {
	t := c.tree
	if c.inLeaf() {
		t.leafRemoveAt(c.trace[c.level], c.traceIndex[c.level])
		if t.leafOnly && c.traceIndex[c.level] == 0 {
			if c.itemCount() == 0 {
				// leaf is empty, the pivot is dropped by the merge
				return
			}
			// pivots equal to the removed key now sit before the leaf
			for i := 0; i < c.level; i++ {
				if c.traceIndex[i] >= 0 {
					c.traceIndex[i] = ^(c.traceIndex[i] + 1)
				}
			}
		}
		return
	}

	if t.leafOnly {
		panic(newErrorf(ErrProblem, "pivot removal in a B+-tree"))
	}

	removalLevel := c.level
	removalIndex := c.traceIndex[c.level]

	c.descendToImmediateLeftLeaf()
	leftCount := c.itemCount()

	c.mark()
	c.level = removalLevel
	c.traceIndex[c.level] = removalIndex
	c.descendToImmediateRightLeaf()
	rightCount := c.itemCount()

	pickLeft := rightCount < leftCount
	if pickLeft {
		c.resetToMark()
		c.traceIndex[c.level] = c.itemCount() - 1
	} else {
		c.traceIndex[c.level] = 0
	}
	c.discardMark()

	t.writeBranchEntry(c.trace[removalLevel], removalIndex, c.Key(), c.Value())
	c.simpleRemove()

	if pickLeft {
		c.traceIndex[removalLevel] = ^removalIndex
	} else {
		c.traceIndex[removalLevel] = ^(removalIndex + 1)
	}
}

// Balance walks from the cursor to the root, splitting blocks that overflow
// and merging blocks that are empty. The cursor is unpositioned afterwards.
//
// If a page cannot be allocated the tree keeps all entries but stays
// unbalanced; further mutations fail with the same error until Clear.
func (c *Cursor) Balance() error {
	t := c.tree
	if err := t.checkWritable(); err != nil {
		return err
	}
	for c.level >= 0 {
		if debugChecks {
			if err := c.checkInvariants(); err != nil {
				panic(err)
			}
		}
		n := c.itemCount()
		var err error
		switch {
		case n > c.capacity():
			if n > c.capacity()+1 {
				panic(newErrorf(ErrCorrupted, "block holds %d entries, capacity %d", n, c.capacity()))
			}
			err = c.splitBlock()
		case n == 0:
			err = c.mergeBlock()
		default:
			c.level--
		}
		if err != nil {
			t.err = err
			return err
		}
	}
	return nil
}

func (c *Cursor) splitBlock() error {
	t := c.tree
	right, err := t.allocatePage()
	if err != nil {
		return err
	}
	newRoot := nullPage
	if c.level == 0 {
		if newRoot, err = t.allocatePage(); err != nil {
			if ferr := t.freePage(right); ferr != nil {
				return ferr
			}
			return err
		}
	}

	c.traceIndex[c.level] = c.capacity() / 2
	pivotKey := c.Key()
	pivotValue := c.valueOrZero()
	left := c.trace[c.level]
	if c.inLeaf() {
		t.splitLeaf(left, right, c.traceIndex[c.level])
	} else {
		t.splitBranch(left, right, c.traceIndex[c.level])
	}

	if c.level == 0 {
		t.root = newRoot
		t.setBranchCount(newRoot, 1)
		t.writeBranchEntry(newRoot, 0, pivotKey, pivotValue)
		t.setPrevChild(newRoot, 0, left)
		t.setPrevChild(newRoot, 1, right)
		t.levelCount++
		t.logger.Debug("btree root split",
			zap.Int64("root", newRoot), zap.Int("levels", t.levelCount))
		c.reset()
		return nil
	}

	parent := c.traceIndex[c.level-1]
	index := parent + 1
	if parent < 0 {
		index = ^parent
	}
	t.branchInsert(c.trace[c.level-1], index, pivotKey, pivotValue, left, right)
	c.level--
	return nil
}

func (c *Cursor) mergeBlock() error {
	t := c.tree

	if c.level == 0 {
		if c.inLeaf() {
			t.Clear()
			c.reset()
			return nil
		}
		c.traceIndex[0] = 0
		onlyChild := c.prevChildPtr()
		if err := t.freePage(t.root); err != nil {
			return err
		}
		t.root = onlyChild
		t.levelCount--
		t.logger.Debug("btree root collapsed",
			zap.Int64("root", onlyChild), zap.Int("levels", t.levelCount))
		c.reset()
		return nil
	}

	if c.inLeaf() && t.storeNext {
		next := t.nextLeaf(c.trace[c.level])
		c.mark()
		if c.jumpToPreviousLeaf() {
			t.setNextLeaf(c.trace[c.level], next)
		}
		c.resetToMark()
		c.discardMark()
	}

	// child pointer the neighbour branch inherits
	remainingChild := nullPage
	if !c.inLeaf() {
		c.traceIndex[c.level] = 0
		remainingChild = c.prevChildPtr()
	}
	if err := t.freePage(c.trace[c.level]); err != nil {
		return err
	}
	c.level--
	if c.traceIndex[c.level] < 0 {
		c.traceIndex[c.level] = ^c.traceIndex[c.level] - 1
	}
	// pivot before the removed child, -1 for the first child
	pivotIndex := c.traceIndex[c.level]

	deletedFirst := pivotIndex == -1
	deletedLast := pivotIndex == c.itemCount()-1
	if c.level >= t.levelCount-2 {
		c.dropLeafChild(pivotIndex, deletedFirst)
		return nil
	}

	if remainingChild == nullPage {
		panic(newErrorf(ErrCorrupted, "empty branch without a child"))
	}
	var mergeLeft bool
	switch {
	case deletedFirst:
		mergeLeft = false
	case deletedLast:
		mergeLeft = true
	default:
		leftCount := t.branchCount(c.prevChildPtr())
		c.traceIndex[c.level]++
		rightCount := t.branchCount(c.nextChildPtr())
		c.traceIndex[c.level]--
		mergeLeft = leftCount <= rightCount
	}

	if !mergeLeft {
		c.traceIndex[c.level]++
	}
	pivotKey := c.Key()
	pivotValue := c.valueOrZero()
	ix := c.traceIndex[c.level]
	t.copyBranchEntries(c.trace[c.level], ix+1, c.trace[c.level], ix, c.itemCount()-ix-1, !mergeLeft)
	t.setBranchCount(c.trace[c.level], c.itemCount()-1)

	// the neighbour now sits left of the index
	c.trace[c.level+1] = c.prevChildPtr()
	c.traceIndex[c.level] = ^c.traceIndex[c.level]
	c.level++

	node := c.trace[c.level]
	if mergeLeft {
		at := c.itemCount()
		t.branchInsert(node, at, pivotKey, pivotValue, t.prevChild(node, at), remainingChild)
		c.traceIndex[c.level] = ^c.itemCount()
	} else {
		t.branchInsert(node, 0, pivotKey, pivotValue, remainingChild, t.prevChild(node, 0))
		c.traceIndex[c.level] = ^0
	}
	return nil
}

// dropLeafChild removes the pointer to a freed leaf from the parent at the
// cursor. In a B-tree the orphaned pivot moves into a neighbouring leaf.
func (c *Cursor) dropLeafChild(pivotIndex int64, deletedFirst bool) {
	t := c.tree
	if deletedFirst {
		pivotIndex = 0
		c.traceIndex[c.level] = 0
	}

	var pivotKey, pivotValue uint64
	if !t.leafOnly {
		pivotKey = c.Key()
		pivotValue = c.Value()
	}
	node := c.trace[c.level]
	t.copyBranchEntries(node, pivotIndex+1, node, pivotIndex, c.itemCount()-pivotIndex-1, deletedFirst)
	t.setBranchCount(node, c.itemCount()-1)

	if t.leafOnly {
		c.traceIndex[c.level] = ^pivotIndex
		return
	}

	switch {
	case deletedFirst:
		c.traceIndex[c.level]--
		c.descendToImmediateRightLeaf()
		c.traceIndex[c.level] = ^0
		c.insertHere(pivotKey, pivotValue)
	case pivotIndex == c.itemCount():
		// removed the last child: append to the new rightmost leaf
		c.descendToImmediateLeftLeaf()
		c.traceIndex[c.level] = ^c.itemCount()
		c.insertHere(pivotKey, pivotValue)
	default:
		pivotLevel := c.level

		c.descendToImmediateLeftLeaf()
		leftCount := c.itemCount()

		c.mark()
		c.level = pivotLevel
		c.traceIndex[c.level] = pivotIndex
		c.descendToImmediateRightLeaf()
		rightCount := c.itemCount()

		if rightCount <= leftCount {
			// the emptier right leaf takes the current pivot, the old pivot
			// replaces it
			c.discardMark()
			c.mark()
			c.level = pivotLevel
			c.traceIndex[c.level] = pivotIndex
			newKey, newValue := c.Key(), c.Value()
			t.writeBranchEntry(c.trace[pivotLevel], pivotIndex, pivotKey, pivotValue)
			pivotKey, pivotValue = newKey, newValue
		}
		c.resetToMark()
		c.discardMark()

		// may overflow, the balance loop splits it
		c.insertHere(pivotKey, pivotValue)
	}
}

// checkInvariants verifies the recorded path: at most one level selects a
// pivot, and only a B+-tree leaf entry may repeat it.
func (c *Cursor) checkInvariants() error {
	t := c.tree
	n := t.levelCount
	if len(c.trace) != n || len(c.traceIndex) != n || len(c.trace2) != n || len(c.traceIndex2) != n {
		return newErrorf(ErrCorrupted, "cursor path sized %d for %d levels", len(c.trace), n)
	}
	if c.level >= n || c.level < -1 {
		return newErrorf(ErrCorrupted, "cursor level %d of %d", c.level, n)
	}
	var matched bool
	var key uint64
	for i := 0; i < c.level; i++ {
		if c.traceIndex[i] < 0 {
			continue
		}
		if matched {
			return newErrorf(ErrCorrupted, "cursor selects pivots on two levels")
		}
		key = t.branchKey(c.trace[i], c.traceIndex[i])
		matched = true
	}
	if !matched {
		return nil
	}
	if t.leafOnly {
		if c.ElementFound() && c.traceIndex[c.level] < c.itemCount() && t.codec.Compare(c.Key(), key) != 0 {
			return newErrorf(ErrCorrupted, "cursor leaf entry differs from selected pivot")
		}
	} else if c.ElementFound() {
		return newErrorf(ErrCorrupted, "cursor selects a pivot and an entry below it")
	}
	return nil
}

// Close releases the cursor for reuse by the tree. The cursor must not be
// used afterwards.
func (c *Cursor) Close() {
	c.marked = false
	c.reset()
	c.tree.spare.Store(c)
}
