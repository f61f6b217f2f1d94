package pagestore

import (
	"maps"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/pagestore/alloc"
	"github.com/Giulio2002/pagestore/keyhash"
)

func newOrderedMap(t *testing.T) *OrderedMap {
	t.Helper()
	cfg := DefaultBTreeConfig()
	cfg.BlockSize = 256
	m, err := NewOrderedMap(alloc.NewHeap(256, 8), Int64Codec, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func newHashMap(t *testing.T, cfg HashConfig) *HashMap {
	t.Helper()
	m, err := NewHashMap(alloc.NewHeap(cfg.BucketSize, 8), Uint64Codec, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOrderedMap(t *testing.T) {
	m := newOrderedMap(t)

	_, _, ok := m.Min()
	assert.False(t, ok)
	_, _, ok = m.Max()
	assert.False(t, ok)

	ref := make(map[int64]uint64)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 3000; i++ {
		k := rng.Int63n(2000) - 1000
		if rng.Intn(4) == 0 {
			removed, err := m.Remove(uint64(k))
			require.NoError(t, err)
			_, had := ref[k]
			require.Equal(t, had, removed)
			delete(ref, k)
		} else {
			v := rng.Uint64()
			require.NoError(t, m.Put(uint64(k), v))
			ref[k] = v
		}
	}
	require.NoError(t, m.CheckInvariants())
	assert.Equal(t, len(ref), m.Len())

	keys := slices.Sorted(maps.Keys(ref))
	var got []int64
	for k, v := range m.All() {
		got = append(got, int64(k))
		require.Equal(t, ref[int64(k)], v)
	}
	assert.Equal(t, keys, got)

	minKey, minValue, ok := m.Min()
	require.True(t, ok)
	assert.Equal(t, keys[0], int64(minKey))
	assert.Equal(t, ref[keys[0]], minValue)
	maxKey, maxValue, ok := m.Max()
	require.True(t, ok)
	assert.Equal(t, keys[len(keys)-1], int64(maxKey))
	assert.Equal(t, ref[keys[len(keys)-1]], maxValue)

	for k, v := range ref {
		assert.True(t, m.Contains(uint64(k)))
		assert.Equal(t, v, m.GetOr(uint64(k), 0))
	}
	assert.Equal(t, uint64(99), m.GetOr(5000, 99))

	// removing twice: found, then not found
	k := keys[0]
	removed, err := m.Remove(uint64(k))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = m.Remove(uint64(k))
	require.NoError(t, err)
	assert.False(t, removed)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, slices.Collect(m.Keys()))
}

func TestOrderedMapEarlyStop(t *testing.T) {
	m := newOrderedMap(t)
	for k := uint64(0); k < 100; k++ {
		require.NoError(t, m.Put(k, k))
	}
	var got []uint64
	for k := range m.Keys() {
		if k == 5 {
			break
		}
		got = append(got, k)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, got)

	// the cursor went back to the tree
	v, ok := m.Get(50)
	require.True(t, ok)
	assert.Equal(t, uint64(50), v)
}

func TestHashMap(t *testing.T) {
	for _, width := range []int{0, 2, 8} {
		cfg := DefaultHashConfig()
		cfg.BucketSize = 256
		cfg.HashWidth = width
		if width == 0 {
			cfg.Hasher = keyhash.XXHasher{Seed: 1}
		}
		m := newHashMap(t, cfg)

		ref := make(map[uint64]uint64)
		rng := rand.New(rand.NewSource(int64(width)))
		for i := 0; i < 3000; i++ {
			k := uint64(rng.Intn(1500))
			if rng.Intn(4) == 0 {
				removed, err := m.Remove(k)
				require.NoError(t, err)
				_, had := ref[k]
				require.Equal(t, had, removed)
				delete(ref, k)
			} else {
				v := rng.Uint64()
				require.NoError(t, m.Put(k, v))
				ref[k] = v
			}
		}
		require.NoError(t, m.CheckInvariants())
		assert.Equal(t, len(ref), m.Len())
		assert.Equal(t, ref, maps.Collect(m.All()))

		for k, v := range ref {
			got, ok := m.Get(k)
			require.True(t, ok)
			require.Equal(t, v, got)
		}
		assert.False(t, m.Contains(1<<40))
		assert.Equal(t, uint64(7), m.GetOr(1<<40, 7))

		// sized for the entry count at the load factor
		s := m.Table().Stats()
		assert.GreaterOrEqual(t, int64(s.Slots)*s.BucketCapacity, int64(float64(m.Len())/cfg.LoadFactor))

		m.Clear()
		assert.Equal(t, 0, m.Len())
		assert.Empty(t, slices.Collect(m.Keys()))
	}
}

func TestHashMapDefaultHasher(t *testing.T) {
	cfg := DefaultHashConfig()
	cfg.BucketSize = 128
	m := newHashMap(t, cfg)
	for k := uint64(0); k < 500; k++ {
		require.NoError(t, m.Put(k, k*k))
	}
	require.NoError(t, m.CheckInvariants())
	assert.Greater(t, m.Table().DirectorySize(), 1)
	for k := uint64(0); k < 500; k++ {
		assert.Equal(t, k*k, m.GetOr(k, 0))
	}
}
