//go:build unix

package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.dat")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := []byte("page region contents")
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}

	m, err := New(int(f.Fd()), 0, len(data), false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if !bytes.Equal(m.Data(), data) {
		t.Errorf("mmap data mismatch: got %q, want %q", m.Data(), data)
	}
	if m.Size() != int64(len(data)) {
		t.Errorf("size mismatch: got %d, want %d", m.Size(), len(data))
	}
	if m.Anonymous() {
		t.Error("file mapping reported as anonymous")
	}
}

func TestWritableSync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.dat")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(4096); err != nil {
		f.Close()
		t.Fatal(err)
	}

	m, err := New(int(f.Fd()), 0, 4096, true)
	if err != nil {
		f.Close()
		t.Fatal(err)
	}

	copy(m.Data(), []byte("modified"))
	if err := m.Sync(); err != nil {
		t.Fatal(err)
	}
	m.Close()
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("modified")) {
		t.Errorf("expected modified data, got %q", data[:16])
	}
}

func TestAnonymous(t *testing.T) {
	m, err := NewAnonymous(8192)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if !m.Anonymous() || !m.Writable() {
		t.Fatal("anonymous mapping must be writable and anonymous")
	}
	for i, b := range m.Data() {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
	m.Data()[8191] = 0xff
	if err := m.Sync(); err != nil {
		t.Errorf("sync on anonymous mapping: %v", err)
	}
	if err := m.AdviseRandom(); err != nil {
		t.Errorf("AdviseRandom failed: %v", err)
	}
}

func TestClose(t *testing.T) {
	m, err := NewAnonymous(4096)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if m.Data() != nil {
		t.Error("data should be nil after close")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Sync(); err != ErrNotMapped {
		t.Errorf("expected ErrNotMapped after close, got %v", err)
	}
}

func TestInvalidSize(t *testing.T) {
	if _, err := NewAnonymous(0); err != ErrInvalidSize {
		t.Errorf("expected ErrInvalidSize for size 0, got %v", err)
	}
	if _, err := New(0, 0, -1, false); err != ErrInvalidSize {
		t.Errorf("expected ErrInvalidSize for size -1, got %v", err)
	}
}
