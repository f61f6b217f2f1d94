package buffer

// Joined presents a list of equally sized regions as one contiguous address
// space. Position p lives in region p/regionSize at offset p%regionSize.
//
// Joined does not own its regions; whoever appended them closes them.
type Joined struct {
	regionSize int64
	regions    [][]byte
}

// NewJoined creates an empty joined buffer whose regions are regionSize bytes.
func NewJoined(regionSize int64) *Joined {
	if regionSize <= 0 {
		panic("buffer: region size must be positive")
	}
	return &Joined{regionSize: regionSize}
}

// Append adds a region at the end of the address space. The region must be
// exactly RegionSize bytes long.
func (j *Joined) Append(region []byte) {
	if int64(len(region)) != j.regionSize {
		panic(&Error{Op: "append region", Pos: j.Size(), Len: int64(len(region)), Size: j.regionSize})
	}
	j.regions = append(j.regions, region)
}

// RegionSize returns the size of each region in bytes.
func (j *Joined) RegionSize() int64 { return j.regionSize }

// Regions returns the number of regions.
func (j *Joined) Regions() int { return len(j.regions) }

func (j *Joined) Size() int64 { return int64(len(j.regions)) * j.regionSize }

// span returns the n bytes at pos if they lie within a single region.
func (j *Joined) span(op string, pos, n int64) ([]byte, bool) {
	checkRange(op, pos, n, j.Size())
	r, off := pos/j.regionSize, pos%j.regionSize
	if off+n > j.regionSize {
		return nil, false
	}
	return j.regions[r][off : off+n], true
}

func (j *Joined) byteAt(pos int64) *byte {
	return &j.regions[pos/j.regionSize][pos%j.regionSize]
}

// readStraddling assembles a little-endian value that crosses regions.
func (j *Joined) readStraddling(pos, n int64) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(*j.byteAt(pos + i))
	}
	return v
}

func (j *Joined) writeStraddling(pos, n int64, v uint64) {
	for i := int64(0); i < n; i++ {
		*j.byteAt(pos + i) = byte(v)
		v >>= 8
	}
}

func (j *Joined) Uint8(pos int64) uint8 {
	b, _ := j.span("get", pos, 1)
	return b[0]
}

func (j *Joined) Uint16(pos int64) uint16 {
	if b, ok := j.span("get", pos, 2); ok {
		return load[uint16](b)
	}
	return uint16(j.readStraddling(pos, 2))
}

func (j *Joined) Uint32(pos int64) uint32 {
	if b, ok := j.span("get", pos, 4); ok {
		return load[uint32](b)
	}
	return uint32(j.readStraddling(pos, 4))
}

func (j *Joined) Uint64(pos int64) uint64 {
	if b, ok := j.span("get", pos, 8); ok {
		return load[uint64](b)
	}
	return j.readStraddling(pos, 8)
}

func (j *Joined) PutUint8(pos int64, v uint8) {
	b, _ := j.span("put", pos, 1)
	b[0] = v
}

func (j *Joined) PutUint16(pos int64, v uint16) {
	if b, ok := j.span("put", pos, 2); ok {
		store(b, v)
		return
	}
	j.writeStraddling(pos, 2, uint64(v))
}

func (j *Joined) PutUint32(pos int64, v uint32) {
	if b, ok := j.span("put", pos, 4); ok {
		store(b, v)
		return
	}
	j.writeStraddling(pos, 4, uint64(v))
}

func (j *Joined) PutUint64(pos int64, v uint64) {
	if b, ok := j.span("put", pos, 8); ok {
		store(b, v)
		return
	}
	j.writeStraddling(pos, 8, v)
}

func (j *Joined) CopyFrom(src Buffer, srcOff, dstOff, n int64) {
	Copy(j, src, srcOff, dstOff, n)
}

// Truncate drops every region after the first n.
func (j *Joined) Truncate(n int) {
	clear(j.regions[n:])
	j.regions = j.regions[:n]
}

// Close forgets all regions.
func (j *Joined) Close() error {
	j.regions = nil
	return nil
}

func (j *Joined) segmentAt(pos int64) []byte {
	return j.regions[pos/j.regionSize][pos%j.regionSize:]
}

func (j *Joined) segmentBefore(pos int64) []byte {
	r := (pos - 1) / j.regionSize
	return j.regions[r][:pos-r*j.regionSize]
}
