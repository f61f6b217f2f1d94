package pagestore

import (
	"bufio"
	"fmt"
	"io"

	"github.com/Giulio2002/pagestore/internal/pageset"
)

// keyBound is an exclusive upper bound on the keys still to be visited by a
// right-to-left walk. An unset bound admits every key.
type keyBound struct {
	key uint64
	set bool
}

func (t *BTree) below(key uint64, b keyBound, inclusive bool) bool {
	if !b.set {
		return true
	}
	c := t.codec.Compare(key, b.key)
	return c < 0 || (inclusive && c == 0)
}

// CheckInvariants walks the whole tree and verifies entry counts, key order,
// the leaf chain and that no block is reachable twice. It also checks the
// path of the tree's idle cursor.
func (t *BTree) CheckInvariants() error {
	if t.root != nullPage {
		w := &treeWalk{}
		if _, err := t.checkBlock(t.root, 0, keyBound{}, w); err != nil {
			return err
		}
	}
	if c := t.spare.Load(); c != nil && len(c.trace) == t.levelCount {
		return c.checkInvariants()
	}
	return nil
}

type treeWalk struct {
	visited  pageset.Set
	lastLeaf int64 // leaf visited before, which is the right neighbour
	anyLeaf  bool
}

func (t *BTree) checkBlock(page int64, level int, bound keyBound, w *treeWalk) (keyBound, error) {
	if page == nullPage {
		return bound, newErrorf(ErrCorrupted, "NULL child at level %d", level)
	}
	if !w.visited.Add(page) {
		return bound, newErrorf(ErrCorrupted, "page %d referenced twice", page)
	}

	if level == t.levelCount-1 {
		n := t.leafCount(page)
		if n <= 0 || n > t.leafCapacity {
			return bound, newErrorf(ErrCorrupted, "leaf %d holds %d entries, capacity %d", page, n, t.leafCapacity)
		}
		for i := n - 1; i >= 0; i-- {
			key := t.leafKey(page, i)
			if !t.below(key, bound, false) {
				return bound, newErrorf(ErrCorrupted, "leaf %d entry %d out of order", page, i)
			}
			bound = keyBound{key: key, set: true}
		}
		if t.storeNext {
			want := nullPage
			if w.anyLeaf {
				want = w.lastLeaf
			}
			if next := t.nextLeaf(page); next != want {
				return bound, newErrorf(ErrCorrupted, "leaf %d links to %d, expected %d", page, next, want)
			}
		}
		w.lastLeaf = page
		w.anyLeaf = true
		return bound, nil
	}

	n := t.branchCount(page)
	if n <= 0 || n > t.branchCapacity {
		return bound, newErrorf(ErrCorrupted, "branch %d holds %d pivots, capacity %d", page, n, t.branchCapacity)
	}
	var err error
	for i := n - 1; i >= 0; i-- {
		if bound, err = t.checkBlock(t.nextChild(page, i), level+1, bound, w); err != nil {
			return bound, err
		}
		// a B+-tree pivot may equal the smallest key right of it
		key := t.branchKey(page, i)
		if !t.below(key, bound, t.leafOnly) {
			return bound, newErrorf(ErrCorrupted, "branch %d pivot %d out of order", page, i)
		}
		bound = keyBound{key: key, set: true}
	}
	return t.checkBlock(t.prevChild(page, 0), level+1, bound, w)
}

// Dump writes one line per reachable block, parents before children.
func (t *BTree) Dump(out io.Writer) error {
	w := bufio.NewWriter(out)
	if t.root != nullPage {
		t.dumpBlock(w, t.root, 0)
	}
	return w.Flush()
}

func (t *BTree) dumpBlock(w *bufio.Writer, page int64, level int) {
	if level == t.levelCount-1 {
		fmt.Fprintf(w, "%d: leaf [", page)
		for i := int64(0); i < t.leafCount(page); i++ {
			if i > 0 {
				w.WriteString(", ")
			}
			fmt.Fprintf(w, "%d->%d", t.leafKey(page, i), t.leafValue(page, i))
		}
		w.WriteByte(']')
		if t.storeNext {
			fmt.Fprintf(w, " next: &%d", t.nextLeaf(page))
		}
		w.WriteByte('\n')
		return
	}

	kind := "branch"
	if level == 0 {
		kind = "root"
	}
	n := t.branchCount(page)
	fmt.Fprintf(w, "%d: %s [&%d", page, kind, t.prevChild(page, 0))
	for i := int64(0); i < n; i++ {
		fmt.Fprintf(w, " %d", t.branchKey(page, i))
		if !t.leafOnly {
			fmt.Fprintf(w, "->%d", t.branchValue(page, i))
		}
		fmt.Fprintf(w, " &%d", t.nextChild(page, i))
	}
	w.WriteString("]\n")
	for i := int64(0); i <= n; i++ {
		t.dumpBlock(w, t.prevChild(page, i), level+1)
	}
}
