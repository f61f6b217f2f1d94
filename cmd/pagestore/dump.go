package main

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Giulio2002/pagestore"
	"github.com/Giulio2002/pagestore/alloc"
)

// DumpOptions selects the structure the dump command builds.
type DumpOptions struct {
	Kind      string
	Keys      int
	BlockSize int
	Seed      int64
}

// DumpStructure inserts opts.Keys random keys into a fresh b-tree or hash
// table and writes its block dump to out.
func DumpStructure(out io.Writer, opts DumpOptions, logger *zap.Logger) error {
	rng := rand.New(rand.NewSource(opts.Seed))
	pages := alloc.NewHeap(opts.BlockSize, alloc.DefaultRegionPages)

	switch opts.Kind {
	case "btree":
		cfg := pagestore.DefaultBTreeConfig()
		cfg.BlockSize = opts.BlockSize
		cfg.Logger = logger
		m, err := pagestore.NewOrderedMap(pages, pagestore.Uint64Codec, cfg)
		if err != nil {
			return err
		}
		defer m.Close()
		for i := 0; i < opts.Keys; i++ {
			k := uint64(rng.Intn(opts.Keys * 4))
			if err := m.Put(k, uint64(i)); err != nil {
				return err
			}
		}
		logTreeStats(logger, m.Tree().Stats())
		return m.Tree().Dump(out)

	case "hash":
		cfg := pagestore.DefaultHashConfig()
		cfg.BucketSize = opts.BlockSize
		cfg.Logger = logger
		m, err := pagestore.NewHashMap(pages, pagestore.Uint64Codec, cfg)
		if err != nil {
			return err
		}
		defer m.Close()
		for i := 0; i < opts.Keys; i++ {
			k := uint64(rng.Intn(opts.Keys * 4))
			if err := m.Put(k, uint64(i)); err != nil {
				return err
			}
		}
		logHashStats(logger, m.Table().Stats())
		return m.Table().Dump(out)

	default:
		pages.Close()
		return errors.Errorf("unknown structure %q, want btree or hash", opts.Kind)
	}
}
