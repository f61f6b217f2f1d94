package buffer

// Heap is a Buffer backed by a single Go byte slice.
type Heap struct {
	data []byte
}

// NewHeap allocates a zeroed heap buffer of size bytes.
func NewHeap(size int64) *Heap {
	return &Heap{data: make([]byte, size)}
}

// Wrap returns a heap buffer that uses b as its storage.
func Wrap(b []byte) *Heap {
	return &Heap{data: b}
}

// Bytes returns the backing slice.
func (h *Heap) Bytes() []byte { return h.data }

func (h *Heap) Size() int64 { return int64(len(h.data)) }

func (h *Heap) slice(op string, pos, n int64) []byte {
	checkRange(op, pos, n, int64(len(h.data)))
	return h.data[pos : pos+n]
}

func (h *Heap) Uint8(pos int64) uint8 {
	return h.slice("get", pos, 1)[0]
}

func (h *Heap) Uint16(pos int64) uint16 {
	return load[uint16](h.slice("get", pos, 2))
}

func (h *Heap) Uint32(pos int64) uint32 {
	return load[uint32](h.slice("get", pos, 4))
}

func (h *Heap) Uint64(pos int64) uint64 {
	return load[uint64](h.slice("get", pos, 8))
}

func (h *Heap) PutUint8(pos int64, v uint8) {
	h.slice("put", pos, 1)[0] = v
}

func (h *Heap) PutUint16(pos int64, v uint16) {
	store(h.slice("put", pos, 2), v)
}

func (h *Heap) PutUint32(pos int64, v uint32) {
	store(h.slice("put", pos, 4), v)
}

func (h *Heap) PutUint64(pos int64, v uint64) {
	store(h.slice("put", pos, 8), v)
}

func (h *Heap) CopyFrom(src Buffer, srcOff, dstOff, n int64) {
	Copy(h, src, srcOff, dstOff, n)
}

// Reallocate grows or shrinks the buffer, keeping the common prefix.
func (h *Heap) Reallocate(newSize int64) (Buffer, bool) {
	if newSize < 0 {
		return nil, false
	}
	if newSize <= int64(cap(h.data)) {
		old := int64(len(h.data))
		h.data = h.data[:newSize]
		if newSize > old {
			clear(h.data[old:])
		}
		return h, true
	}
	data := make([]byte, newSize)
	copy(data, h.data)
	h.data = data
	return h, true
}

func (h *Heap) Close() error {
	h.data = nil
	return nil
}

func (h *Heap) segmentAt(pos int64) []byte     { return h.data[pos:] }
func (h *Heap) segmentBefore(pos int64) []byte { return h.data[:pos] }
