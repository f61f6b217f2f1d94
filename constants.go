package pagestore

// Block size constraints
const (
	// DefaultBlockSize is the default B-tree block and hash bucket size (4KB)
	DefaultBlockSize = 4096

	// MinBlockSize is the smallest accepted block or bucket size
	MinBlockSize = 16
)

// Pointer widths
const (
	// DefaultPointerSize is the default page pointer width in bytes
	DefaultPointerSize = 4

	// nullPage is the in-memory NULL page pointer. On disk NULL is all ones
	// at the configured pointer width.
	nullPage int64 = -1
)

// Linear hash defaults
const (
	// DefaultLoadFactor is the target ratio of entries to bucket capacity
	DefaultLoadFactor = 0.75

	// DefaultHashWidth stores the full 64-bit hash with every entry
	DefaultHashWidth = 8

	// DefaultRegionPages is the number of pages per allocator region
	DefaultRegionPages = 16
)
