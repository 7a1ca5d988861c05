package anim

import (
	"math/bits"
	"strings"
)

// BitArray is an unbounded set of bit indexes. Bits past the stored words
// all share one value, so AllOn is cheap.
type BitArray struct {
	words  []uint64
	highOn bool
}

// AllOn returns an array with every bit set.
func AllOn() BitArray {
	return BitArray{highOn: true}
}

func (a *BitArray) grow(word int) {
	for len(a.words) <= word {
		var fill uint64
		if a.highOn {
			fill = ^uint64(0)
		}
		a.words = append(a.words, fill)
	}
}

// Bit reports whether bit i is set.
func (a BitArray) Bit(i int) bool {
	w := i / 64
	if w >= len(a.words) {
		return a.highOn
	}
	return a.words[w]&(1<<(uint(i)%64)) != 0
}

// SetBit sets bit i.
func (a *BitArray) SetBit(i int) {
	a.grow(i / 64)
	a.words[i/64] |= 1 << (uint(i) % 64)
}

// ClearBit clears bit i.
func (a *BitArray) ClearBit(i int) {
	a.grow(i / 64)
	a.words[i/64] &^= 1 << (uint(i) % 64)
}

// SetBitTo sets or clears bit i.
func (a *BitArray) SetBitTo(i int, on bool) {
	if on {
		a.SetBit(i)
	} else {
		a.ClearBit(i)
	}
}

// Clear turns every bit off.
func (a *BitArray) Clear() {
	a.words = a.words[:0]
	a.highOn = false
}

// IsZero reports whether no bit is set.
func (a BitArray) IsZero() bool {
	if a.highOn {
		return false
	}
	for _, w := range a.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// IsAllOn reports whether every bit is set.
func (a BitArray) IsAllOn() bool {
	if !a.highOn {
		return false
	}
	for _, w := range a.words {
		if w != ^uint64(0) {
			return false
		}
	}
	return true
}

// NumOnBits counts the set bits, or returns -1 if infinitely many are set.
func (a BitArray) NumOnBits() int {
	if a.highOn {
		return -1
	}
	n := 0
	for _, w := range a.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// HasBitsInCommon reports whether some bit is set in both arrays.
func (a BitArray) HasBitsInCommon(b BitArray) bool {
	if a.highOn && b.highOn {
		return true
	}
	n := max(len(a.words), len(b.words))
	for i := 0; i < n; i++ {
		if a.word(i)&b.word(i) != 0 {
			return true
		}
	}
	return false
}

func (a BitArray) word(i int) uint64 {
	if i < len(a.words) {
		return a.words[i]
	}
	if a.highOn {
		return ^uint64(0)
	}
	return 0
}

// Clone returns an independent copy.
func (a BitArray) Clone() BitArray {
	return BitArray{words: append([]uint64(nil), a.words...), highOn: a.highOn}
}

// String lists the low bits, lowest first, with "..." for an infinite tail.
func (a BitArray) String() string {
	var b strings.Builder
	for i := 0; i < len(a.words)*64; i++ {
		if a.Bit(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	if a.highOn {
		b.WriteString("111...")
	}
	return b.String()
}
