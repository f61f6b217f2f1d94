package pageset

import (
	"math/rand"
	"testing"
)

func TestSet(t *testing.T) {
	var s Set

	if s.Contains(1) {
		t.Error("empty set contains 1")
	}
	if !s.Add(1) || !s.Add(2) {
		t.Fatal("Add of new pages returned false")
	}
	if s.Add(1) {
		t.Error("Add of present page returned true")
	}
	if !s.Contains(1) || !s.Contains(2) || s.Contains(3) {
		t.Error("Contains mismatch")
	}
	if s.Len() != 2 {
		t.Errorf("Expected len=2, got %d", s.Len())
	}

	s.Clear()
	if s.Len() != 0 || s.Contains(1) {
		t.Error("Clear failed")
	}
}

func TestSetZeroPage(t *testing.T) {
	var s Set
	if s.Contains(0) {
		t.Error("empty set contains page 0")
	}
	s.Add(0)
	if !s.Contains(0) {
		t.Error("page 0 missing")
	}
}

func TestSetGrowth(t *testing.T) {
	var s Set
	n := 10000
	for i := 0; i < n; i++ {
		s.Add(int64(i))
	}
	if s.Len() != n {
		t.Errorf("Expected len=%d, got %d", n, s.Len())
	}
	for i := 0; i < n; i++ {
		if !s.Contains(int64(i)) {
			t.Fatalf("page %d missing after growth", i)
		}
	}
	if s.Contains(int64(n)) {
		t.Error("contains page never added")
	}
}

func TestSetRandom(t *testing.T) {
	var s Set
	ref := make(map[int64]bool)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		p := rng.Int63n(1 << 40)
		if s.Add(p) == ref[p] {
			t.Fatalf("Add(%d) disagrees with reference", p)
		}
		ref[p] = true
	}
	seen := 0
	s.ForEach(func(p int64) {
		if !ref[p] {
			t.Errorf("unexpected page %d", p)
		}
		seen++
	})
	if seen != len(ref) {
		t.Errorf("ForEach visited %d pages, want %d", seen, len(ref))
	}
}

func BenchmarkSetAdd(b *testing.B) {
	var s Set
	for i := 0; i < b.N; i++ {
		s.Add(int64(i))
	}
}

func BenchmarkSetContains(b *testing.B) {
	var s Set
	for i := 0; i < 1024; i++ {
		s.Add(int64(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Contains(int64(i & 1023))
	}
}
