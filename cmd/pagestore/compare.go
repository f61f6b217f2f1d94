package main

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var compareBucket = []byte("pagestore")

// CompareOptions configures the compare command.
type CompareOptions struct {
	Keys int
	Dir  string
	Seed int64
}

// CompareWithBolt loads the same random entries into an ordered map and a
// bbolt bucket and checks both yield identical in-order contents. Keys are
// stored big-endian in bbolt so its byte order matches numeric order.
func CompareWithBolt(cfg Config, opts CompareOptions, logger *zap.Logger) error {
	m, err := openOrderedMap(cfg, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	db, err := bolt.Open(filepath.Join(opts.Dir, "compare.db"), 0644, &bolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		return errors.Wrap(err, "open bbolt")
	}
	defer db.Close()

	rng := rand.New(rand.NewSource(opts.Seed))
	key := make([]byte, 8)

	start := time.Now()
	err = db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(compareBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		bucket, err := tx.CreateBucket(compareBucket)
		if err != nil {
			return err
		}
		for i := 0; i < opts.Keys; i++ {
			k, v := rng.Uint64(), rng.Uint64()
			if err := m.Put(k, v); err != nil {
				return err
			}
			// bbolt keeps the value slice until commit
			val := make([]byte, 8)
			binary.BigEndian.PutUint64(key, k)
			binary.BigEndian.PutUint64(val, v)
			if err := bucket.Put(key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "load")
	}
	logger.Info("loaded", zap.Int("keys", opts.Keys), zap.Duration("elapsed", time.Since(start)))

	if err := m.CheckInvariants(); err != nil {
		return err
	}

	return db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(compareBucket).Cursor()
		val := make([]byte, 8)
		k, v := c.First()
		n := 0
		for mk, mv := range m.All() {
			if k == nil {
				return errors.Errorf("bbolt ended after %d entries, map has more", n)
			}
			binary.BigEndian.PutUint64(key, mk)
			binary.BigEndian.PutUint64(val, mv)
			if !bytes.Equal(k, key) || !bytes.Equal(v, val) {
				return errors.Errorf("entry %d: map %x=%x, bbolt %x=%x", n, key, val, k, v)
			}
			n++
			k, v = c.Next()
		}
		if k != nil {
			return errors.Errorf("map ended after %d entries, bbolt has more", n)
		}
		logger.Info("contents match", zap.Int("entries", n))
		return nil
	})
}
