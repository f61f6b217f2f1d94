// Package alloc hands out fixed-size pages from growing memory regions and
// exposes all regions as one buffer addressed by page*pageSize.
package alloc

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Giulio2002/pagestore/buffer"
)

// DefaultRegionPages is the default number of pages per region.
const DefaultRegionPages = 16

// Options configures a PageAllocator.
type Options struct {
	PageSize    int
	RegionPages int
	Logger      *zap.Logger
}

// PageAllocator allocates pages numbered from 0. Free pages are tracked in a
// bitmap and the lowest free page is always handed out first, so the address
// space stays dense. Regions are never returned to the source before Close.
//
// A PageAllocator is not safe for concurrent use.
type PageAllocator struct {
	source      RegionSource
	pageSize    int64
	regionPages int64
	regions     []Region
	occupied    *Bitmap
	view        *buffer.Joined
	logger      *zap.Logger
	closed      bool
}

// New creates a page allocator drawing regions from source.
func New(source RegionSource, opts Options) (*PageAllocator, error) {
	if opts.PageSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "page size %d", opts.PageSize)
	}
	if opts.RegionPages <= 0 {
		opts.RegionPages = DefaultRegionPages
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	regionBytes := int64(opts.PageSize) * int64(opts.RegionPages)
	return &PageAllocator{
		source:      source,
		pageSize:    int64(opts.PageSize),
		regionPages: int64(opts.RegionPages),
		occupied:    NewBitmap(0),
		view:        buffer.NewJoined(regionBytes),
		logger:      opts.Logger,
	}, nil
}

// NewHeap creates a page allocator backed by Go heap regions.
func NewHeap(pageSize, regionPages int) *PageAllocator {
	a, err := New(HeapSource{}, Options{PageSize: pageSize, RegionPages: regionPages})
	if err != nil {
		panic(err)
	}
	return a
}

func (a *PageAllocator) addRegion() error {
	size := a.pageSize * a.regionPages
	r, err := a.source.Allocate(size)
	if err != nil {
		return errors.Wrapf(err, "allocate region %d", len(a.regions))
	}
	if int64(len(r.Bytes())) < size {
		return multierr.Append(errors.Wrapf(ErrShortRegion, "got %d bytes, want %d", len(r.Bytes()), size), r.Close())
	}
	a.regions = append(a.regions, r)
	a.view.Append(r.Bytes()[:size:size])
	a.occupied.Extend(int64(len(a.regions)) * a.regionPages)
	a.logger.Debug("page region added",
		zap.Int("regions", len(a.regions)),
		zap.Int64("pages", a.occupied.Capacity()),
		zap.Int64("regionBytes", size))
	return nil
}

// AllocatePage returns the lowest free page, growing by one region if
// every page is taken.
func (a *PageAllocator) AllocatePage() (int64, error) {
	if a.closed {
		return -1, ErrClosed
	}
	page, ok := a.occupied.Allocate()
	if ok {
		return page, nil
	}
	if err := a.addRegion(); err != nil {
		return -1, err
	}
	page, ok = a.occupied.Allocate()
	if !ok {
		return -1, errors.New("alloc: fresh region has no free page")
	}
	return page, nil
}

// FreePage returns page to the allocator. Freeing a page that is not
// allocated is reported as ErrDoubleFree.
func (a *PageAllocator) FreePage(page int64) error {
	if a.closed {
		return ErrClosed
	}
	if !a.occupied.Free(page) {
		return errors.Wrapf(ErrDoubleFree, "page %d", page)
	}
	return nil
}

// FreeAllPages marks every page free. Regions are kept for reuse.
func (a *PageAllocator) FreeAllPages() {
	a.occupied.Clear()
}

// Buffer returns the view spanning all regions. The same view object grows
// as regions are added.
func (a *PageAllocator) Buffer() buffer.Buffer {
	return a.view
}

// PageSize returns the page size in bytes.
func (a *PageAllocator) PageSize() int {
	return int(a.pageSize)
}

// AllocatedPages returns the number of pages currently in use.
func (a *PageAllocator) AllocatedPages() int64 {
	return a.occupied.Count()
}

// IsAllocated reports whether page is currently in use.
func (a *PageAllocator) IsAllocated(page int64) bool {
	return a.occupied.IsAllocated(page)
}

// Regions returns the number of regions obtained from the source.
func (a *PageAllocator) Regions() int {
	return len(a.regions)
}

// Close releases every region. The allocator cannot be used afterwards.
func (a *PageAllocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var err error
	for _, r := range a.regions {
		err = multierr.Append(err, r.Close())
	}
	a.regions = nil
	a.view.Close()
	a.occupied = NewBitmap(0)
	return err
}
