package benchmarks

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	"github.com/tecbot/gorocksdb"
	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/pagestore"
	"github.com/Giulio2002/pagestore/alloc"
)

// benchCacheDir holds the external stores between runs; loading a million
// keys into RocksDB dominates a short benchmark otherwise.
const benchCacheDir = "testdata/benchdb"

var benchBucket = []byte("bench")

var (
	cacheMu    sync.Mutex
	trees      = make(map[int]*pagestore.OrderedMap)
	tables     = make(map[int]*pagestore.HashMap)
	mdbxEnvs   = make(map[int]*mdbxgo.Env)
	boltDBs    = make(map[int]*bolt.DB)
	rocksDBs   = make(map[int]*gorocksdb.DB)
	orderCache = make(map[int][]int)
)

// getCachedTree returns an ordered map holding keys 0..size-1 with value
// equal to the key. It lives on the heap and is built once per size.
func getCachedTree(b *testing.B, size int) *pagestore.OrderedMap {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if m, ok := trees[size]; ok {
		return m
	}
	m, err := pagestore.NewOrderedMap(alloc.NewHeap(pagestore.DefaultBlockSize, 256), pagestore.Uint64Codec, pagestore.DefaultBTreeConfig())
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < size; i++ {
		if err := m.Put(uint64(i), uint64(i)); err != nil {
			b.Fatal(err)
		}
	}
	trees[size] = m
	return m
}

// getCachedTable returns a hash map holding keys 0..size-1.
func getCachedTable(b *testing.B, size int) *pagestore.HashMap {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if m, ok := tables[size]; ok {
		return m
	}
	cfg := pagestore.DefaultHashConfig()
	m, err := pagestore.NewHashMap(alloc.NewHeap(cfg.BucketSize, 256), pagestore.Uint64Codec, cfg)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < size; i++ {
		if err := m.Put(uint64(i), uint64(i)); err != nil {
			b.Fatal(err)
		}
	}
	tables[size] = m
	return m
}

// fixturePath returns the on-disk location of the cached store for engine
// at size, creating the cache directory. The bool reports whether the file
// was already there and needs no loading.
func fixturePath(b *testing.B, engine string, size int) (string, bool) {
	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(benchCacheDir, fmt.Sprintf("u64_%d.%s", size, engine))
	return path, fileExists(path)
}

// fillEntries calls put with big-endian encodings of i -> i for every i
// below size. Each entry gets its own slices since bbolt holds on to values
// until commit.
func fillEntries(size int, put func(k, v []byte) error) error {
	for i := 0; i < size; i++ {
		kv := make([]byte, 16)
		binary.BigEndian.PutUint64(kv[:8], uint64(i))
		binary.BigEndian.PutUint64(kv[8:], uint64(i))
		if err := put(kv[:8:8], kv[8:]); err != nil {
			return err
		}
	}
	return nil
}

func getCachedMdbx(b *testing.B, size int) *mdbxgo.Env {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if env := mdbxEnvs[size]; env != nil {
		return env
	}
	path, loaded := fixturePath(b, "mdbx", size)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, err := mdbxgo.NewEnv(mdbxgo.Label("pagestore-bench"))
	if err != nil {
		b.Fatal(err)
	}
	env.SetOption(mdbxgo.OptMaxDB, 2)
	env.SetGeometry(-1, -1, 1<<32, -1, -1, pagestore.DefaultBlockSize)
	if err := env.Open(path, mdbxgo.NoSubdir|mdbxgo.NoMetaSync|mdbxgo.WriteMap, 0644); err != nil {
		b.Fatal(err)
	}
	if !loaded {
		b.Logf("loading %d keys into mdbx", size)
		err := env.Update(func(txn *mdbxgo.Txn) error {
			dbi, err := txn.OpenDBI(string(benchBucket), mdbxgo.Create, nil, nil)
			if err != nil {
				return err
			}
			return fillEntries(size, func(k, v []byte) error {
				return txn.Put(dbi, k, v, mdbxgo.Upsert)
			})
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	mdbxEnvs[size] = env
	return env
}

func getCachedBolt(b *testing.B, size int) *bolt.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if db := boltDBs[size]; db != nil {
		return db
	}
	path, loaded := fixturePath(b, "bolt", size)

	db, err := bolt.Open(path, 0644, &bolt.Options{NoSync: true, NoFreelistSync: true})
	if err != nil {
		b.Fatal(err)
	}
	if !loaded {
		b.Logf("loading %d keys into bbolt", size)
		err := db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists(benchBucket)
			if err != nil {
				return err
			}
			return fillEntries(size, bucket.Put)
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	boltDBs[size] = db
	return db
}

func getCachedRocks(b *testing.B, size int) *gorocksdb.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if db := rocksDBs[size]; db != nil {
		return db
	}
	path, loaded := fixturePath(b, "rocks", size)

	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetWriteBufferSize(64 << 20)
	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		b.Fatal(err)
	}
	if !loaded {
		b.Logf("loading %d keys into rocksdb", size)
		batch := gorocksdb.NewWriteBatch()
		defer batch.Destroy()
		fillEntries(size, func(k, v []byte) error {
			batch.Put(k, v)
			return nil
		})
		wo := gorocksdb.NewDefaultWriteOptions()
		defer wo.Destroy()
		if err := db.Write(wo, batch); err != nil {
			b.Fatal(err)
		}
	}
	rocksDBs[size] = db
	return db
}

// randomOrder returns a fixed permutation of 0..n-1 shared by all engines.
func randomOrder(n int) []int {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if order, ok := orderCache[n]; ok {
		return order
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := int(uint64(i*17+31) % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	orderCache[n] = order
	return order
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func formatSize(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%dM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%dk", n/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// CleanupBenchCache closes all cached databases.
func CleanupBenchCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	for _, m := range trees {
		m.Close()
	}
	for _, m := range tables {
		m.Close()
	}
	for _, env := range mdbxEnvs {
		env.Close()
	}
	for _, db := range boltDBs {
		db.Close()
	}
	for _, db := range rocksDBs {
		db.Close()
	}
	trees = make(map[int]*pagestore.OrderedMap)
	tables = make(map[int]*pagestore.HashMap)
	mdbxEnvs = make(map[int]*mdbxgo.Env)
	boltDBs = make(map[int]*bolt.DB)
	rocksDBs = make(map[int]*gorocksdb.DB)
}

// DeleteBenchCache removes all cached database files.
func DeleteBenchCache() error {
	return os.RemoveAll(benchCacheDir)
}
