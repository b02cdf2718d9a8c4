// Package bitmap implements the packed bit index the page allocator uses to
// record per-page ownership.  Bits are numbered from the right-most bit of
// each uint64 word; a set bit means the page is allocated.
package bitmap

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrIndexOutOfRange is returned when a bit index falls outside [0, Len()).
var ErrIndexOutOfRange = errors.New("bitmap: index out of range")

const wordBits = 64

// Bitmap is a fixed-length bit vector.  It is not safe for concurrent use;
// the owning allocator serialises access.
type Bitmap struct {
	words []uint64
	size  int
	count int
}

// New creates a bitmap of size bits, all clear.
func New(size int) *Bitmap {
	if size < 0 {
		size = 0
	}
	return &Bitmap{
		words: make([]uint64, (size+wordBits-1)/wordBits),
		size:  size,
	}
}

// Len returns the number of bits.
func (b *Bitmap) Len() int {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	return b.count
}

func (b *Bitmap) check(i int) error {
	if i < 0 || i >= b.size {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, b.size)
	}
	return nil
}

func (b *Bitmap) checkRange(i, n int) error {
	if n < 0 || i < 0 || i > b.size || n > b.size-i {
		return fmt.Errorf("%w: start %d count %d (len %d)", ErrIndexOutOfRange, i, n, b.size)
	}
	return nil
}

func (b *Bitmap) get(i int) bool {
	return b.words[i/wordBits]>>(uint(i)%wordBits)&1 == 1
}

func (b *Bitmap) set(i int) {
	mask := uint64(1) << (uint(i) % wordBits)
	if b.words[i/wordBits]&mask == 0 {
		b.words[i/wordBits] |= mask
		b.count++
	}
}

func (b *Bitmap) clear(i int) {
	mask := uint64(1) << (uint(i) % wordBits)
	if b.words[i/wordBits]&mask != 0 {
		b.words[i/wordBits] &^= mask
		b.count--
	}
}

// Set marks bit i.
func (b *Bitmap) Set(i int) error {
	if err := b.check(i); err != nil {
		return err
	}
	b.set(i)
	return nil
}

// Clear unmarks bit i.
func (b *Bitmap) Clear(i int) error {
	if err := b.check(i); err != nil {
		return err
	}
	b.clear(i)
	return nil
}

// IsSet reports whether bit i is marked.
func (b *Bitmap) IsSet(i int) (bool, error) {
	if err := b.check(i); err != nil {
		return false, err
	}
	return b.get(i), nil
}

// SetRange marks bits [i, i+n).
func (b *Bitmap) SetRange(i, n int) error {
	if err := b.checkRange(i, n); err != nil {
		return err
	}
	for k := i; k < i+n; k++ {
		b.set(k)
	}
	return nil
}

// ClearRange unmarks bits [i, i+n).
func (b *Bitmap) ClearRange(i, n int) error {
	if err := b.checkRange(i, n); err != nil {
		return err
	}
	for k := i; k < i+n; k++ {
		b.clear(k)
	}
	return nil
}

// FindFirstClear returns the lowest clear bit.  The scan is linear in the
// number of words: full words are skipped and the first zero bit of a
// partially used word is located with TrailingZeros64.
func (b *Bitmap) FindFirstClear() (int, bool) {
	for w, word := range b.words {
		if word == ^uint64(0) {
			continue
		}
		i := w*wordBits + bits.TrailingZeros64(^word)
		if i >= b.size {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// FirstClear returns the lowest clear bit within [i, i+n).
func (b *Bitmap) FirstClear(i, n int) (int, bool, error) {
	if err := b.checkRange(i, n); err != nil {
		return 0, false, err
	}
	for k := i; k < i+n; k++ {
		if !b.get(k) {
			return k, true, nil
		}
	}
	return 0, false, nil
}

// FindClearRun returns the start of the lowest run of n clear bits at or
// after from (first fit).
func (b *Bitmap) FindClearRun(n, from int) (int, bool) {
	if n <= 0 || from < 0 || n > b.size {
		return 0, false
	}
	start, run := 0, 0
	for i := from; i < b.size; {
		if i%wordBits == 0 && i+wordBits <= b.size {
			switch b.words[i/wordBits] {
			case ^uint64(0):
				run = 0
				i += wordBits
				continue
			case 0:
				if run == 0 {
					start = i
				}
				run += wordBits
				if run >= n {
					return start, true
				}
				i += wordBits
				continue
			}
		}
		if b.get(i) {
			run = 0
		} else {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				return start, true
			}
		}
		i++
	}
	return 0, false
}

// LongestClearRun returns the length of the longest run of clear bits.
func (b *Bitmap) LongestClearRun() int {
	longest, run := 0, 0
	for i := 0; i < b.size; i++ {
		if b.get(i) {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	return longest
}

// String renders the bitmap as '1' (set) and '.' (clear), lowest index first.
func (b *Bitmap) String() string {
	var sb strings.Builder
	sb.Grow(b.size)
	for i := 0; i < b.size; i++ {
		if b.get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
