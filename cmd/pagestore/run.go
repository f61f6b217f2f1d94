package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Giulio2002/pagestore"
)

// workloadMap is the surface the random workload drives.
type workloadMap interface {
	Get(key uint64) (uint64, bool)
	Put(key, value uint64) error
	Remove(key uint64) (bool, error)
	Len() int
	CheckInvariants() error
	Close() error
}

// RunWorkloads runs the configured workload on an ordered map and a hash map
// at the same time. Each map has its own allocator and mirror; the first
// failure cancels the other workload.
func RunWorkloads(ctx context.Context, cfg Config, logger *zap.Logger) error {
	ordered, err := openOrderedMap(cfg, logger)
	if err != nil {
		return err
	}
	hashed, err := openHashMap(cfg, logger)
	if err != nil {
		ordered.Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer ordered.Close()
		err := runWorkload(ctx, ordered, cfg.Workload, cfg.Workload.Seed, logger.Named("btree"))
		if err == nil {
			logTreeStats(logger, ordered.Tree().Stats())
		}
		return errors.Wrap(err, "btree workload")
	})
	g.Go(func() error {
		defer hashed.Close()
		err := runWorkload(ctx, hashed, cfg.Workload, cfg.Workload.Seed+1, logger.Named("hash"))
		if err == nil {
			logHashStats(logger, hashed.Table().Stats())
		}
		return errors.Wrap(err, "hash workload")
	})
	return g.Wait()
}

func openOrderedMap(cfg Config, logger *zap.Logger) (*pagestore.OrderedMap, error) {
	pages, err := openPages(cfg.Allocator, "btree", cfg.Tree.BlockSize, logger)
	if err != nil {
		return nil, err
	}
	tree := cfg.Tree
	tree.Logger = logger.Named("btree")
	m, err := pagestore.NewOrderedMap(pages, pagestore.Uint64Codec, tree)
	if err != nil {
		pages.Close()
		return nil, err
	}
	return m, nil
}

func openHashMap(cfg Config, logger *zap.Logger) (*pagestore.HashMap, error) {
	hasher, err := cfg.Hash.newHasher()
	if err != nil {
		return nil, err
	}
	pages, err := openPages(cfg.Allocator, "hash", cfg.Hash.BucketSize, logger)
	if err != nil {
		return nil, err
	}
	hash := cfg.Hash.HashConfig
	hash.Hasher = hasher
	hash.Logger = logger.Named("hash")
	m, err := pagestore.NewHashMap(pages, pagestore.Uint64Codec, hash)
	if err != nil {
		pages.Close()
		return nil, err
	}
	return m, nil
}

func runWorkload(ctx context.Context, m workloadMap, w WorkloadConfig, seed int64, logger *zap.Logger) error {
	rng := rand.New(rand.NewSource(seed))
	mirror := make(map[uint64]uint64)
	start := time.Now()

	for op := 1; op <= w.Ops; op++ {
		key := uint64(rng.Int63n(w.KeySpace))
		if rng.Float64() < w.RemoveRate {
			removed, err := m.Remove(key)
			if err != nil {
				return errors.Wrapf(err, "op %d: remove %d", op, key)
			}
			if _, ok := mirror[key]; ok != removed {
				return errors.Errorf("op %d: remove %d reported %v, mirror has %v", op, key, removed, ok)
			}
			delete(mirror, key)
		} else {
			value := rng.Uint64()
			if err := m.Put(key, value); err != nil {
				return errors.Wrapf(err, "op %d: put %d", op, key)
			}
			mirror[key] = value
		}

		if w.CheckEvery > 0 && op%w.CheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.CheckInvariants(); err != nil {
				return errors.Wrapf(err, "op %d", op)
			}
			logger.Debug("checkpoint", zap.Int("op", op), zap.Int("entries", m.Len()))
		}
	}

	if err := verifyMirror(m, mirror); err != nil {
		return err
	}
	logger.Info("workload done",
		zap.Int("ops", w.Ops),
		zap.Int("entries", m.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func verifyMirror(m workloadMap, mirror map[uint64]uint64) error {
	if err := m.CheckInvariants(); err != nil {
		return err
	}
	if m.Len() != len(mirror) {
		return errors.Errorf("map holds %d entries, mirror %d", m.Len(), len(mirror))
	}
	for k, want := range mirror {
		got, ok := m.Get(k)
		if !ok {
			return errors.Errorf("key %d missing", k)
		}
		if got != want {
			return errors.Errorf("key %d: got %d, want %d", k, got, want)
		}
	}
	return nil
}

func logTreeStats(logger *zap.Logger, s pagestore.TreeStats) {
	logger.Info("btree stats",
		zap.Int("levels", s.Levels),
		zap.Int64("branches", s.Branches),
		zap.Int64("leaves", s.Leaves),
		zap.Int64("entries", s.Entries),
		zap.Int64("leaf_capacity", s.LeafCapacity),
		zap.Int64("branch_capacity", s.BranchCapacity))
}

func logHashStats(logger *zap.Logger, s pagestore.HashStats) {
	logger.Info("hash stats",
		zap.Int("slots", s.Slots),
		zap.Int("low_depth", s.LowDepth),
		zap.Int("split_index", s.SplitIndex),
		zap.Int64("buckets", s.Buckets),
		zap.Int64("entries", s.Entries),
		zap.Int("longest_chain", s.LongestChain),
		zap.Int64("bucket_capacity", s.BucketCapacity))
}
