package pagestore

import (
	"go.uber.org/zap"

	"github.com/Giulio2002/pagestore/buffer"
)

// BTreeConfig configures a BTree.
type BTreeConfig struct {
	// BlockSize is the size of one tree block. It must equal the page size of
	// the allocator. Usually the OS page size.
	BlockSize int `yaml:"block_size"`

	// PointerSize is the width of stored page pointers in bytes (1, 2, 4 or
	// 8). It bounds the number of pages the tree can address.
	PointerSize int `yaml:"pointer_size"`

	// StoreNextPointer keeps a pointer to the next leaf in every leaf, so
	// in-order iteration never climbs back into branches.
	StoreNextPointer bool `yaml:"store_next_pointer"`

	// EntryMustBeInLeaf selects a B+-tree: values live only in leaves and
	// branches hold bare pivot keys. Otherwise branches carry values too.
	EntryMustBeInLeaf bool `yaml:"entry_must_be_in_leaf"`

	Logger *zap.Logger `yaml:"-"`
}

// DefaultBTreeConfig returns a B+-tree over 4KB blocks with 4-byte pointers
// and next-leaf pointers.
func DefaultBTreeConfig() BTreeConfig {
	return BTreeConfig{
		BlockSize:         DefaultBlockSize,
		PointerSize:       DefaultPointerSize,
		StoreNextPointer:  true,
		EntryMustBeInLeaf: true,
	}
}

// Validate checks the configuration without regard to entry sizes.
func (c BTreeConfig) Validate() error {
	if c.BlockSize < MinBlockSize {
		return newErrorf(ErrBadConfig, "block size %d below minimum %d", c.BlockSize, MinBlockSize)
	}
	if !validWidth(c.PointerSize) {
		return newErrorf(ErrBadConfig, "pointer size %d must be 1, 2, 4 or 8", c.PointerSize)
	}
	return nil
}

// HashConfig configures a HashTable.
type HashConfig struct {
	// LoadFactor is the fill ratio EnsureCapacity sizes the directory for.
	LoadFactor float64 `yaml:"load_factor"`

	// BucketSize is the size of one bucket. It must equal the page size of
	// the allocator.
	BucketSize int `yaml:"bucket_size"`

	// PointerSize is the width of stored bucket pointers in bytes.
	PointerSize int `yaml:"pointer_size"`

	// HashWidth is the number of hash bytes stored per entry. Zero stores no
	// hash and recomputes it from the key with Hasher.
	HashWidth int `yaml:"hash_width"`

	// Hasher recomputes hashes when HashWidth is zero.
	Hasher Hasher `yaml:"-"`

	Logger *zap.Logger `yaml:"-"`
}

// Hasher turns a key into a 64-bit hash.
type Hasher interface {
	Hash(key uint64) uint64
}

// DefaultHashConfig returns a configuration with 4KB buckets, 4-byte
// pointers, full stored hashes and a 0.75 load factor.
func DefaultHashConfig() HashConfig {
	return HashConfig{
		LoadFactor:  DefaultLoadFactor,
		BucketSize:  DefaultBlockSize,
		PointerSize: DefaultPointerSize,
		HashWidth:   DefaultHashWidth,
	}
}

// Validate checks the configuration without regard to entry sizes.
func (c HashConfig) Validate() error {
	if c.LoadFactor <= 0 {
		return newErrorf(ErrBadConfig, "load factor %v must be positive", c.LoadFactor)
	}
	if c.BucketSize < MinBlockSize {
		return newErrorf(ErrBadConfig, "bucket size %d below minimum %d", c.BucketSize, MinBlockSize)
	}
	if !validWidth(c.PointerSize) {
		return newErrorf(ErrBadConfig, "pointer size %d must be 1, 2, 4 or 8", c.PointerSize)
	}
	if c.HashWidth != 0 && !validWidth(c.HashWidth) {
		return newErrorf(ErrBadConfig, "hash width %d must be 0, 1, 2, 4 or 8", c.HashWidth)
	}
	if c.HashWidth == 0 && c.Hasher == nil {
		return newErrorf(ErrBadConfig, "hash width 0 needs a hasher to recompute hashes")
	}
	return nil
}

// PageAllocator supplies the fixed-size pages engines store blocks in. Page
// p occupies bytes [p*PageSize, (p+1)*PageSize) of Buffer.
type PageAllocator interface {
	AllocatePage() (int64, error)
	FreePage(page int64) error
	FreeAllPages()
	Buffer() buffer.Buffer
	PageSize() int
}
