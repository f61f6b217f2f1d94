package alloc

import "math/bits"

// Bitmap tracks page occupancy using a bitset of uint64 words.
type Bitmap struct {
	words    []uint64
	numSlots int64
	freeHint int64 // No slot below freeHint is free
}

// NewBitmap creates a bitmap capable of tracking the given number of slots.
func NewBitmap(numSlots int64) *Bitmap {
	return &Bitmap{
		words:    make([]uint64, (numSlots+63)/64),
		numSlots: numSlots,
	}
}

// Allocate marks the lowest free slot as used and returns it.
// Returns (-1, false) if every slot is taken.
func (b *Bitmap) Allocate() (int64, bool) {
	for wordIdx := b.freeHint / 64; wordIdx < int64(len(b.words)); wordIdx++ {
		word := b.words[wordIdx]
		if word == ^uint64(0) {
			continue
		}
		bitPos := bits.TrailingZeros64(^word)
		slot := wordIdx*64 + int64(bitPos)
		if slot >= b.numSlots {
			break
		}
		b.words[wordIdx] |= 1 << bitPos
		b.freeHint = slot + 1
		return slot, true
	}
	b.freeHint = b.numSlots
	return -1, false
}

// Free marks a slot as available. It reports false if the slot was not
// allocated or is out of range.
func (b *Bitmap) Free(slot int64) bool {
	if slot < 0 || slot >= b.numSlots {
		return false
	}
	wordIdx := slot / 64
	mask := uint64(1) << (slot % 64)
	if b.words[wordIdx]&mask == 0 {
		return false
	}
	b.words[wordIdx] &^= mask

	if slot < b.freeHint {
		b.freeHint = slot
	}
	return true
}

// Clear resets all slots to free.
func (b *Bitmap) Clear() {
	clear(b.words)
	b.freeHint = 0
}

// Extend increases the bitmap capacity to accommodate more slots.
func (b *Bitmap) Extend(newCap int64) {
	if newCap <= b.numSlots {
		return
	}

	newNumWords := (newCap + 63) / 64
	if newNumWords > int64(len(b.words)) {
		newWords := make([]uint64, newNumWords)
		copy(newWords, b.words)
		b.words = newWords
	}
	if b.freeHint > b.numSlots {
		b.freeHint = b.numSlots
	}
	b.numSlots = newCap
}

// IsAllocated returns true if the slot is marked as allocated.
func (b *Bitmap) IsAllocated(slot int64) bool {
	if slot < 0 || slot >= b.numSlots {
		return false
	}
	return b.words[slot/64]&(1<<(slot%64)) != 0
}

// Count returns the number of allocated slots.
func (b *Bitmap) Count() int64 {
	var count int64
	for _, word := range b.words {
		count += int64(bits.OnesCount64(word))
	}
	return count
}

// Capacity returns the total number of slots.
func (b *Bitmap) Capacity() int64 {
	return b.numSlots
}
