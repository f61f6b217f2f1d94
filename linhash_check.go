package pagestore

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"

	"github.com/Giulio2002/pagestore/internal/pageset"
)

// CheckInvariants verifies the directory bounds and, for every slot, that
// each stored hash addresses the slot, that (hash, key) increases strictly
// along the chain, and that only the last bucket of a chain has room left.
func (t *HashTable) CheckInvariants() error {
	n := len(t.directory)
	if n < 1<<t.lowDepth || n >= 1<<(t.lowDepth+1) {
		return newErrorf(ErrCorrupted, "directory size %d at depth %d", n, t.lowDepth)
	}
	if t.splitIndex > n {
		return newErrorf(ErrCorrupted, "split index %d beyond directory size %d", t.splitIndex, n)
	}

	var visited pageset.Set
	for slot, bucket := range t.directory {
		depth := t.lowDepth
		if slot < t.splitIndex || slot >= 1<<t.lowDepth {
			depth++
		}
		mask := bits.Reverse64(1<<depth - 1)
		prefix := bits.Reverse64(uint64(slot))

		var prevHash, prevKey uint64
		first := true
		for ; bucket != nullPage; bucket = t.nextBucket(bucket) {
			if !visited.Add(bucket) {
				return newErrorf(ErrCorrupted, "bucket %d referenced twice", bucket)
			}
			count := t.bucketCount(bucket)
			if count <= 0 || count > t.maxEntries {
				return newErrorf(ErrCorrupted, "bucket %d holds %d entries, capacity %d", bucket, count, t.maxEntries)
			}
			for i := int64(0); i < count; i++ {
				hash, key := t.entryHash(bucket, i), t.entryKey(bucket, i)
				if hash&mask != prefix {
					return newErrorf(ErrCorrupted, "slot %d bucket %d entry %d: hash %#x outside slot", slot, bucket, i, hash)
				}
				if !first && (hash < prevHash || hash == prevHash && t.codec.Compare(key, prevKey) <= 0) {
					return newErrorf(ErrCorrupted, "slot %d bucket %d entry %d out of order", slot, bucket, i)
				}
				prevHash, prevKey, first = hash, key, false
			}
			if t.nextBucket(bucket) != nullPage && count != t.maxEntries {
				return newErrorf(ErrCorrupted, "bucket %d has room but a successor", bucket)
			}
		}
	}
	return nil
}

// Dump writes one line per directory slot listing its chain.
func (t *HashTable) Dump(out io.Writer) error {
	w := bufio.NewWriter(out)
	for slot, bucket := range t.directory {
		fmt.Fprintf(w, "%d: ", slot)
		for ; bucket != nullPage; bucket = t.nextBucket(bucket) {
			fmt.Fprintf(w, "%d:{", bucket)
			for i := int64(0); i < t.bucketCount(bucket); i++ {
				if i > 0 {
					w.WriteString(", ")
				}
				fmt.Fprintf(w, "%d(%#x): %d", t.entryKey(bucket, i), t.entryHash(bucket, i), t.entryValue(bucket, i))
			}
			w.WriteString("}->")
		}
		w.WriteString("NULL\n")
	}
	return w.Flush()
}
