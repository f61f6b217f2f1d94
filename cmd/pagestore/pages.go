package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Giulio2002/pagestore/alloc"
)

// pageSet is an allocator together with the source it draws regions from.
// The allocator closes its regions; a bump source also caches chunks that
// have to be released separately.
type pageSet struct {
	*alloc.PageAllocator
	bump *alloc.BumpSource
}

// Close releases the allocator and the source.
func (p *pageSet) Close() error {
	err := p.PageAllocator.Close()
	if p.bump != nil {
		err = multierr.Append(err, p.bump.Close())
	}
	return err
}

// openPages creates an allocator of pageSize pages as cfg describes. name
// prefixes region files so several allocators can share a directory.
func openPages(cfg AllocConfig, name string, pageSize int, logger *zap.Logger) (*pageSet, error) {
	var (
		source alloc.RegionSource
		bump   *alloc.BumpSource
	)
	switch cfg.Source {
	case "heap":
		source = alloc.HeapSource{}
	case "anonymous":
		source = alloc.AnonymousSource{}
	case "file", "bump":
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create region dir")
		}
		source = alloc.NewFileSource(cfg.Dir, name)
		if cfg.Source == "bump" {
			bump = alloc.NewBumpSource(source)
			source = bump
		}
	default:
		return nil, errors.Errorf("unknown allocator source %q", cfg.Source)
	}

	pages, err := alloc.New(source, alloc.Options{
		PageSize:    pageSize,
		RegionPages: cfg.RegionPages,
		Logger:      logger.Named(name),
	})
	if err != nil {
		return nil, err
	}
	return &pageSet{PageAllocator: pages, bump: bump}, nil
}
