// Package keyhash turns fixed-width keys into 64-bit hashes for the linear
// hash table.
package keyhash

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/pkg/errors"
)

// Hasher turns a key into a 64-bit hash.
type Hasher interface {
	Hash(key uint64) uint64
}

// SipHasher is keyed SipHash-2-4 over the 8-byte little-endian key. With
// secret keys it resists hash flooding.
type SipHasher struct {
	K0, K1 uint64
}

func (h SipHasher) Hash(key uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return siphash.Hash(h.K0, h.K1, b[:])
}

// XXHasher is xxHash64 over the little-endian key xored with Seed.
type XXHasher struct {
	Seed uint64
}

func (h XXHasher) Hash(key uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key^h.Seed)
	return xxhash.Sum64(b[:])
}

// Masked keeps only the bits of Mask from the wrapped hasher, for tables
// that store fewer than 8 hash bytes.
type Masked struct {
	Hasher Hasher
	Mask   uint64
}

func (h Masked) Hash(key uint64) uint64 {
	return h.Hasher.Hash(key) & h.Mask
}

// RandomSeed returns two keys from the system's secure random source.
func RandomSeed() (k0, k1 uint64, err error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, 0, errors.Wrap(err, "keyhash: read random seed")
	}
	return binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]), nil
}

// NewSipHasher returns a SipHasher with random keys.
func NewSipHasher() (SipHasher, error) {
	k0, k1, err := RandomSeed()
	if err != nil {
		return SipHasher{}, err
	}
	return SipHasher{K0: k0, K1: k1}, nil
}
