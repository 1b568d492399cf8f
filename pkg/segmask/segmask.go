// Package segmask implements a fixed-width bitset indexed by route segment.
//
// Bit i set means the leg from stop i to stop i+1 is occupied. A Mask is an
// immutable value: every operation returns a new Mask and never mutates the
// receiver, so masks can be copied and shared freely.
package segmask

import (
	"fmt"
	"math/bits"
	"strings"
)

const wordBits = 64

// Mask is a bitset of fixed length.
type Mask struct {
	n     int
	words []uint64
}

// New returns an all-free mask covering n segments.
func New(n int) Mask {
	if n < 0 {
		panic("segmask: negative length")
	}
	return Mask{n: n, words: make([]uint64, (n+wordBits-1)/wordBits)}
}

// Span returns a mask of length n with bits [start, end) set.
func Span(n, start, end int) Mask {
	m := New(n)
	m.checkRange(start, end)
	for i := start; i < end; i++ {
		m.words[i/wordBits] |= 1 << (uint(i) % wordBits)
	}
	return m
}

// Parse decodes the textual form produced by String: one '0' or '1' per
// segment, segment 0 first.
func Parse(s string) (Mask, error) {
	m := New(len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			m.words[i/wordBits] |= 1 << (uint(i) % wordBits)
		default:
			return Mask{}, fmt.Errorf("segmask: invalid character %q at %d", c, i)
		}
	}
	return m, nil
}

// Len returns the number of segments the mask covers.
func (m Mask) Len() int { return m.n }

// Test reports whether bit i is set.
func (m Mask) Test(i int) bool {
	if i < 0 || i >= m.n {
		panic(fmt.Sprintf("segmask: index %d out of range [0,%d)", i, m.n))
	}
	return m.words[i/wordBits]&(1<<(uint(i)%wordBits)) != 0
}

// Or returns m | o.
func (m Mask) Or(o Mask) Mask {
	m.checkLen(o)
	out := New(m.n)
	for i := range m.words {
		out.words[i] = m.words[i] | o.words[i]
	}
	return out
}

// And returns m & o.
func (m Mask) And(o Mask) Mask {
	m.checkLen(o)
	out := New(m.n)
	for i := range m.words {
		out.words[i] = m.words[i] & o.words[i]
	}
	return out
}

// AndNot returns m &^ o, i.e. m & ~o.
func (m Mask) AndNot(o Mask) Mask {
	m.checkLen(o)
	out := New(m.n)
	for i := range m.words {
		out.words[i] = m.words[i] &^ o.words[i]
	}
	return out
}

// Intersects reports whether m and o share any set bit.
func (m Mask) Intersects(o Mask) bool {
	m.checkLen(o)
	for i := range m.words {
		if m.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// RangeFree reports whether every bit in [start, end) is clear.
func (m Mask) RangeFree(start, end int) bool {
	return !m.Intersects(Span(m.n, start, end))
}

// Count returns the number of set bits.
func (m Mask) Count() int {
	c := 0
	for _, w := range m.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Equal reports whether m and o have the same length and bits.
func (m Mask) Equal(o Mask) bool {
	if m.n != o.n {
		return false
	}
	for i := range m.words {
		if m.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// String renders the mask as '0'/'1' characters, segment 0 first.
func (m Mask) String() string {
	var b strings.Builder
	b.Grow(m.n)
	for i := 0; i < m.n; i++ {
		if m.Test(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func (m Mask) checkLen(o Mask) {
	if m.n != o.n {
		panic(fmt.Sprintf("segmask: length mismatch %d != %d", m.n, o.n))
	}
}

func (m Mask) checkRange(start, end int) {
	if start < 0 || end > m.n || start > end {
		panic(fmt.Sprintf("segmask: range [%d,%d) out of bounds for length %d", start, end, m.n))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mask) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
