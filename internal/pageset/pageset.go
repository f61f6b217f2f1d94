// Package pageset provides a set of page numbers for structure checks.
// Uses fibonacci hashing so runs of sequential pages spread over the table.
package pageset

// Set is an open-addressing set of non-negative page numbers with linear
// probing. The zero value is an empty set.
type Set struct {
	slots []int64 // -1 marks an empty slot
	count int
	mask  uint64
}

// Fibonacci hash constant: 2^64 / golden ratio
const fibHash64 = 11400714819323198485

func (s *Set) slot(page int64) uint64 {
	return (uint64(page) * fibHash64) & s.mask
}

func (s *Set) init(size int) {
	s.slots = make([]int64, size)
	for i := range s.slots {
		s.slots[i] = -1
	}
	s.mask = uint64(size - 1)
	s.count = 0
}

// Contains reports whether page is in the set.
func (s *Set) Contains(page int64) bool {
	if len(s.slots) == 0 || page < 0 {
		return false
	}
	for idx := s.slot(page); ; idx = (idx + 1) & s.mask {
		switch s.slots[idx] {
		case -1:
			return false
		case page:
			return true
		}
	}
}

// Add inserts page and reports whether it was absent. Negative pages panic.
func (s *Set) Add(page int64) bool {
	if page < 0 {
		panic("pageset: negative page")
	}
	if len(s.slots) == 0 {
		s.init(16)
	} else if s.count >= len(s.slots)*3/4 {
		s.grow()
	}
	for idx := s.slot(page); ; idx = (idx + 1) & s.mask {
		switch s.slots[idx] {
		case -1:
			s.slots[idx] = page
			s.count++
			return true
		case page:
			return false
		}
	}
}

// grow doubles the table size
func (s *Set) grow() {
	old := s.slots
	s.init(len(old) * 2)
	for _, p := range old {
		if p >= 0 {
			s.Add(p)
		}
	}
}

// ForEach calls fn for every page in unspecified order.
func (s *Set) ForEach(fn func(page int64)) {
	for _, p := range s.slots {
		if p >= 0 {
			fn(p)
		}
	}
}

// Clear removes all pages but keeps the table.
func (s *Set) Clear() {
	for i := range s.slots {
		s.slots[i] = -1
	}
	s.count = 0
}

// Len returns the number of pages.
func (s *Set) Len() int {
	return s.count
}
