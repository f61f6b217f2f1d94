// Package pagestore implements two index structures that live entirely in
// fixed-size pages of a byte-addressable buffer: a B-tree (optionally a
// B+-tree) and a linear hash table.
//
// Both engines store fixed-width integer keys and values through a Codec
// and refer to other blocks by page number, so their contents are plain
// bytes that can sit on the Go heap, in anonymous memory or in a mapped
// file. Pages come from a PageAllocator; the alloc package provides one
// backed by growing regions.
//
// Key features:
//   - B-tree and B+-tree layouts with optional next-leaf pointers
//   - Configurable pointer width (1, 2, 4 or 8 bytes) bounding the page count
//   - Linear hashing with incremental directory growth and overflow chains
//   - Stored hashes truncated to a configurable width, or recomputed from keys
//   - Cursors that position, insert, remove and iterate
//   - Invariant checkers and block dumps for both structures
//
// Structural changes allocate every page they need before touching any
// block, so a failed allocation leaves the structure as it was.
//
// Basic usage:
//
//	m, err := pagestore.NewOrderedMap(alloc.NewHeap(4096, 16), pagestore.Uint64Codec, pagestore.DefaultBTreeConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	if err := m.Put(42, 7); err != nil {
//	    log.Fatal(err)
//	}
//	v, ok := m.Get(42)
//
// Lower level access goes through cursors:
//
//	c := m.Tree().Cursor()
//	defer c.Close()
//	c.DescendToKey(42)
//	if !c.ElementFound() {
//	    err = c.SimpleInsert(42, 7)
//	    if err == nil {
//	        err = c.Balance()
//	    }
//	}
//
// None of the types are safe for concurrent use.
package pagestore
