package bloom

import (
	"math/bits"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// BitStore is the fixed-length flag array behind a Filter. Bits start cleared
// and are only ever set.
type BitStore interface {
	// Set raises bit i and reports whether it was previously clear.
	Set(i uint64) bool
	// Test reports whether bit i is set.
	Test(i uint64) bool
	// Len returns the number of addressable bits.
	Len() uint64
	// Count returns the number of set bits.
	Count() uint64
}

// denseBits is the single-writer store backed by a bitset.BitSet.
type denseBits struct {
	set *bitset.BitSet
	n   uint64
}

func newDenseBits(n uint64) (*denseBits, error) {
	if n > MaxCapacity {
		return nil, ErrCapacityTooLarge
	}
	// bitset.New swallows a failed allocation and returns an empty set.
	set := bitset.New(uint(n))
	if uint64(set.Len()) < n {
		return nil, ErrCapacityTooLarge
	}
	return &denseBits{set: set, n: n}, nil
}

func (d *denseBits) Set(i uint64) bool {
	if d.set.Test(uint(i)) {
		return false
	}
	d.set.Set(uint(i))
	return true
}

func (d *denseBits) Test(i uint64) bool {
	return d.set.Test(uint(i))
}

func (d *denseBits) Len() uint64 {
	return d.n
}

func (d *denseBits) Count() uint64 {
	return uint64(d.set.Count())
}

// atomicBits is a lock-free store for concurrent inserts. Every word is read
// and written with sync/atomic, so a racing Set can never clear another
// goroutine's bit.
type atomicBits struct {
	words []uint64
	n     uint64
}

func newAtomicBits(n uint64) (*atomicBits, error) {
	if n > MaxCapacity {
		return nil, ErrCapacityTooLarge
	}
	return &atomicBits{words: make([]uint64, wordsFor(n)), n: n}, nil
}

func (a *atomicBits) Set(i uint64) bool {
	mask := uint64(1) << (i & 63)
	old := atomic.OrUint64(&a.words[i>>6], mask)
	return old&mask == 0
}

func (a *atomicBits) Test(i uint64) bool {
	mask := uint64(1) << (i & 63)
	return atomic.LoadUint64(&a.words[i>>6])&mask != 0
}

func (a *atomicBits) Len() uint64 {
	return a.n
}

func (a *atomicBits) Count() uint64 {
	var c int
	for i := range a.words {
		c += bits.OnesCount64(atomic.LoadUint64(&a.words[i]))
	}
	return uint64(c)
}

// wordsFor returns the number of 64-bit words needed to hold n bits. It does
// not overflow for any n.
func wordsFor(n uint64) uint64 {
	return n/64 + min(n%64, 1)
}
