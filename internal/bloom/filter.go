// Package bloom implements a fixed-size Bloom filter with two-stage probe hashing.
//
// A Bloom filter is a probabilistic data structure that allows checking if an
// element is *definitely not* in a set or *probably* in a set. It is highly
// space-efficient, retains no element values, and does not support deletion.
//
// The Algorithm
// =============
//
// Every element is reduced to k bit positions (probes) in a single bitset of
// m bits. Instead of computing k unrelated hash functions, the probes are
// derived from one structural digest:
//
//  1. Digest (Identity): The element is hashed once with a HashFunc, which for
//     the provided helpers is xxHash64 over a canonical byte encoding of the
//     value. Equal values always produce equal digests.
//
//  2. Positional Mix (Spread): The 8 big-endian bytes of the digest are fed to
//     MurmurHash3 x64_128, seeded with the probe number i. The low 64 bits of
//     the result select the bit for probe i, modulo m.
//
// Seeding the second hash with the probe number gives k practically
// independent positions for the price of one element hash. Alternative
// second-stage mixes can be selected with WithProbeStrategy.
//
// Errors
// ======
//
// Hashing is the only operation that can fail. A failed digest or mix is
// returned as a *HashError and never mapped to a default index. An Insert that
// fails part way leaves the bits it already set: that can only raise the false
// positive rate, never introduce a false negative.
//
// Concurrency
// ===========
//
// A Filter is not safe for concurrent mutation by default. Callers guard it
// with a sync.Mutex, or a sync.RWMutex since Query only reads. Filters built
// with WithConcurrentInserts use an atomic bitset instead, and tolerate any
// mix of concurrent Insert and Query calls: bits only ever go from 0 to 1.
//
// Memory Layout
// =============
//
// The default bitset packs 64 flags per uint64 word:
//
//	+----------+----------+-----+------------+
//	| Word 0   | Word 1   | ... | Word m/64  |
//	| bits 0-63| 64-127   |     |            |
//	+----------+----------+-----+------------+
package bloom

import (
	"errors"
	"math"
	"sync/atomic"
)

var (
	// ErrInvalidCapacity is returned when a filter is created with zero bits.
	ErrInvalidCapacity = errors.New("bloom: capacity must be at least 1")

	// ErrInvalidProbeCount is returned when a filter is created with zero probes.
	ErrInvalidProbeCount = errors.New("bloom: probe count must be at least 1")

	// ErrCapacityTooLarge is returned when the bitset for a filter cannot be
	// allocated, either because capacity exceeds MaxCapacity or because the
	// allocation came back short.
	ErrCapacityTooLarge = errors.New("bloom: capacity exceeds maximum")
)

// MaxCapacity is the largest bit count New accepts: 2^40 bits, 128 GiB of
// bitset.
const MaxCapacity uint64 = 1 << 40

// Filter is a Bloom filter over elements of type T.
//
// T carries no runtime representation; it only binds the filter to the
// HashFunc used to digest its elements.
type Filter[T any] struct {
	bits   BitStore
	probes uint32
	hash   HashFunc[T]
	mix    ProbeStrategy

	// inserts counts Add calls that flipped at least one bit.
	inserts atomic.Uint64
}

type options struct {
	concurrent bool
	strategy   ProbeStrategy
}

// Option configures a Filter at construction time.
type Option func(*options)

// WithConcurrentInserts backs the filter with an atomic bitset so that Insert
// and Query may be called from multiple goroutines without external locking.
func WithConcurrentInserts() Option {
	return func(o *options) {
		o.concurrent = true
	}
}

// WithProbeStrategy replaces the second-stage positional mix. The default is
// ProbeMurmur3.
func WithProbeStrategy(s ProbeStrategy) Option {
	return func(o *options) {
		if s != nil {
			o.strategy = s
		}
	}
}

// New creates a filter with capacity bits and probeCount probes per element.
// All bits start cleared. Zero values for either parameter are rejected, as
// is a capacity above MaxCapacity.
func New[T any](capacity uint64, probeCount uint32, hash HashFunc[T], opts ...Option) (*Filter[T], error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if probeCount == 0 {
		return nil, ErrInvalidProbeCount
	}
	if hash == nil {
		return nil, errors.New("bloom: hash function is required")
	}

	o := options{strategy: ProbeMurmur3}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		bits BitStore
		err  error
	)
	if o.concurrent {
		bits, err = newAtomicBits(capacity)
	} else {
		bits, err = newDenseBits(capacity)
	}
	if err != nil {
		return nil, err
	}

	return &Filter[T]{
		bits:   bits,
		probes: probeCount,
		hash:   hash,
		mix:    o.strategy,
	}, nil
}

// NewString creates a filter over strings digested with StringHash.
func NewString(capacity uint64, probeCount uint32, opts ...Option) (*Filter[string], error) {
	return New[string](capacity, probeCount, StringHash, opts...)
}

// NewBytes creates a filter over byte slices digested with BytesHash.
func NewBytes(capacity uint64, probeCount uint32, opts ...Option) (*Filter[[]byte], error) {
	return New[[]byte](capacity, probeCount, BytesHash, opts...)
}

// Insert records el in the filter by setting each of its probe bits.
//
// On a *HashError the bits set by earlier probes are kept.
func (f *Filter[T]) Insert(el T) error {
	_, err := f.Add(el)
	return err
}

// Add inserts el and reports whether at least one bit flipped from 0 to 1.
// A false result means el was already (probably) present.
func (f *Filter[T]) Add(el T) (bool, error) {
	digest, err := f.digest(el)
	if err != nil {
		return false, err
	}

	changed := false
	for i := uint32(0); i < f.probes; i++ {
		idx, err := f.index(digest, i)
		if err != nil {
			// Keep what was set. A partial insert cannot produce a false negative.
			if changed {
				f.inserts.Add(1)
			}
			return changed, err
		}
		if f.bits.Set(idx) {
			changed = true
		}
	}

	if changed {
		f.inserts.Add(1)
	}
	return changed, nil
}

// Query reports whether el is possibly in the set. A false result is definite.
//
// If any probe cannot be derived the verdict is withheld and a *HashError is
// returned.
func (f *Filter[T]) Query(el T) (bool, error) {
	digest, err := f.digest(el)
	if err != nil {
		return false, err
	}

	for i := uint32(0); i < f.probes; i++ {
		idx, err := f.index(digest, i)
		if err != nil {
			return false, err
		}
		if !f.bits.Test(idx) {
			return false, nil
		}
	}
	return true, nil
}

// digest runs the first hashing stage.
func (f *Filter[T]) digest(el T) (uint64, error) {
	h, err := f.hash(el)
	if err != nil {
		return 0, &HashError{Probe: -1, Err: err}
	}
	return h, nil
}

// index runs the second hashing stage for probe i and reduces it to a bit
// position in [0, capacity).
func (f *Filter[T]) index(digest uint64, i uint32) (uint64, error) {
	g, err := f.mix.Mix(digest, i)
	if err != nil {
		return 0, &HashError{Probe: int(i), Err: err}
	}
	return g % f.bits.Len(), nil
}

// Capacity returns the number of bits in the filter.
func (f *Filter[T]) Capacity() uint64 {
	return f.bits.Len()
}

// ProbeCount returns the number of bits touched per element.
func (f *Filter[T]) ProbeCount() uint32 {
	return f.probes
}

// BitsSet returns the number of bits currently set. It never decreases.
func (f *Filter[T]) BitsSet() uint64 {
	return f.bits.Count()
}

// Inserts returns how many Add or Insert calls changed the filter.
func (f *Filter[T]) Inserts() uint64 {
	return f.inserts.Load()
}

// Saturation returns the fraction of bits set, in [0, 1].
func (f *Filter[T]) Saturation() float64 {
	return float64(f.bits.Count()) / float64(f.bits.Len())
}

// EstimatedFalsePositiveRate approximates the probability that Query returns
// true for an element never inserted, given the current saturation.
func (f *Filter[T]) EstimatedFalsePositiveRate() float64 {
	return math.Pow(f.Saturation(), float64(f.probes))
}

// SizeBytes returns the memory held by the bitset.
func (f *Filter[T]) SizeBytes() uint64 {
	return wordsFor(f.bits.Len()) * 8
}
