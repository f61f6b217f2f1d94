package benchmarks

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"testing"

	"github.com/tecbot/gorocksdb"

	"github.com/Giulio2002/pagestore"
	"github.com/Giulio2002/pagestore/alloc"
)

func newRocksWriteOpts() *gorocksdb.WriteOptions {
	wo := gorocksdb.NewDefaultWriteOptions()
	wo.DisableWAL(true) // Disable WAL for fair comparison (others don't sync either)
	return wo
}

// BenchmarkWriteOps compares value updates and insert/remove churn on
// pre-populated stores. Writers open one transaction up front.
func BenchmarkWriteOps(b *testing.B) {
	for _, size := range benchSizes {
		sizeName := formatSize(size)

		b.Run(fmt.Sprintf("RandPut_%s/btree", sizeName), func(b *testing.B) {
			benchRandPutTree(b, size)
		})
		b.Run(fmt.Sprintf("RandPut_%s/hash", sizeName), func(b *testing.B) {
			benchRandPutHash(b, size)
		})
		b.Run(fmt.Sprintf("RandPut_%s/mdbx", sizeName), func(b *testing.B) {
			benchRandPutMdbx(b, size)
		})
		b.Run(fmt.Sprintf("RandPut_%s/bolt", sizeName), func(b *testing.B) {
			benchRandPutBolt(b, size)
		})
		b.Run(fmt.Sprintf("RandPut_%s/rocksdb", sizeName), func(b *testing.B) {
			benchRandPutRocks(b, size)
		})

		// Insert a fresh key and remove it again: splits and merges
		b.Run(fmt.Sprintf("Churn_%s/btree", sizeName), func(b *testing.B) {
			benchChurnTree(b, size)
		})
		b.Run(fmt.Sprintf("Churn_%s/hash", sizeName), func(b *testing.B) {
			benchChurnHash(b, size)
		})
	}
}

// BenchmarkLoad measures building a store of 100k keys from empty.
func BenchmarkLoad(b *testing.B) {
	const numKeys = 100_000

	b.Run("Seq/btree", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			m, err := pagestore.NewOrderedMap(alloc.NewHeap(pagestore.DefaultBlockSize, 256), pagestore.Uint64Codec, pagestore.DefaultBTreeConfig())
			if err != nil {
				b.Fatal(err)
			}
			for k := 0; k < numKeys; k++ {
				m.Put(uint64(k), uint64(k))
			}
			m.Close()
		}
	})
	b.Run("Rand/btree", func(b *testing.B) {
		order := randomOrder(numKeys)
		for i := 0; i < b.N; i++ {
			m, err := pagestore.NewOrderedMap(alloc.NewHeap(pagestore.DefaultBlockSize, 256), pagestore.Uint64Codec, pagestore.DefaultBTreeConfig())
			if err != nil {
				b.Fatal(err)
			}
			for _, k := range order {
				m.Put(uint64(k), uint64(k))
			}
			m.Close()
		}
	})
	b.Run("Rand/hash", func(b *testing.B) {
		order := randomOrder(numKeys)
		cfg := pagestore.DefaultHashConfig()
		for i := 0; i < b.N; i++ {
			m, err := pagestore.NewHashMap(alloc.NewHeap(cfg.BucketSize, 256), pagestore.Uint64Codec, cfg)
			if err != nil {
				b.Fatal(err)
			}
			for _, k := range order {
				m.Put(uint64(k), uint64(k))
			}
			m.Close()
		}
	})
}

// ============ Random Put (updates to random existing keys) ============

func benchRandPutTree(b *testing.B, numKeys int) {
	m := getCachedTree(b, numKeys)
	order := randomOrder(numKeys)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		m.Put(uint64(order[i%numKeys]), uint64(i))
	}
}

func benchRandPutHash(b *testing.B, numKeys int) {
	m := getCachedTable(b, numKeys)
	order := randomOrder(numKeys)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		m.Put(uint64(order[i%numKeys]), uint64(i))
	}
}

func benchRandPutMdbx(b *testing.B, numKeys int) {
	env := getCachedMdbx(b, numKeys)
	order := randomOrder(numKeys)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Open transaction and DBI once before timing
	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()

	dbi, err := txn.OpenDBI("bench", 0, nil, nil)
	if err != nil {
		b.Fatal(err)
	}

	key := make([]byte, 8)
	val := make([]byte, 8)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(key, uint64(order[i%numKeys]))
		binary.BigEndian.PutUint64(val, uint64(i))
		txn.Put(dbi, key, val, 0)
	}
}

func benchRandPutBolt(b *testing.B, numKeys int) {
	db := getCachedBolt(b, numKeys)
	order := randomOrder(numKeys)

	// Open write transaction once before timing
	tx, err := db.Begin(true)
	if err != nil {
		b.Fatal(err)
	}
	defer tx.Rollback()

	bucket := tx.Bucket(benchBucket)
	if bucket == nil {
		b.Fatal("bucket not found")
	}

	key := make([]byte, 8)
	val := make([]byte, 8)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(key, uint64(order[i%numKeys]))
		binary.BigEndian.PutUint64(val, uint64(i))
		bucket.Put(key, val)
	}
}

func benchRandPutRocks(b *testing.B, numKeys int) {
	db := getCachedRocks(b, numKeys)
	order := randomOrder(numKeys)

	wo := newRocksWriteOpts()
	defer wo.Destroy()

	key := make([]byte, 8)
	val := make([]byte, 8)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(key, uint64(order[i%numKeys]))
		binary.BigEndian.PutUint64(val, uint64(i))
		db.Put(wo, key, val)
	}
}

// ============ Churn ============

func benchChurnTree(b *testing.B, numKeys int) {
	m := getCachedTree(b, numKeys)
	order := randomOrder(numKeys)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// keys above the populated range
		k := uint64(numKeys + order[i%numKeys])
		m.Put(k, k)
		m.Remove(k)
	}
}

func benchChurnHash(b *testing.B, numKeys int) {
	m := getCachedTable(b, numKeys)
	order := randomOrder(numKeys)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		k := uint64(numKeys + order[i%numKeys])
		m.Put(k, k)
		m.Remove(k)
	}
}
