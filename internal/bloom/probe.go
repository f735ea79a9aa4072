package bloom

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// ProbeStrategy is the second hashing stage. Mix derives the raw position for
// probe i from an element digest; the Filter reduces it modulo capacity.
type ProbeStrategy interface {
	Mix(digest uint64, i uint32) (uint64, error)
}

// ProbeFunc adapts a plain function to ProbeStrategy.
type ProbeFunc func(digest uint64, i uint32) (uint64, error)

func (f ProbeFunc) Mix(digest uint64, i uint32) (uint64, error) {
	return f(digest, i)
}

var (
	// ProbeMurmur3 feeds the big-endian digest bytes to MurmurHash3 x64_128
	// seeded with the probe number and keeps the low 64 bits. This is the
	// default strategy.
	ProbeMurmur3 ProbeStrategy = ProbeFunc(murmurMix)

	// ProbeXXH3 rehashes the big-endian digest bytes with XXH3-64 seeded by
	// the probe number. It yields a different bit layout than ProbeMurmur3,
	// so filters built with one strategy must not be queried with the other.
	ProbeXXH3 ProbeStrategy = ProbeFunc(xxh3Mix)
)

func murmurMix(digest uint64, i uint32) (uint64, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], digest)

	h := murmur3.New128WithSeed(i)
	if _, err := h.Write(buf[:]); err != nil {
		return 0, err
	}
	lo, _ := h.Sum128()
	return lo, nil
}

func xxh3Mix(digest uint64, i uint32) (uint64, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], digest)
	return xxh3.HashSeed(buf[:], uint64(i)), nil
}

// ProbeStrategyByName resolves the names accepted in configuration:
// "murmur3" (or "") and "xxh3".
func ProbeStrategyByName(name string) (ProbeStrategy, bool) {
	switch name {
	case "", "murmur3":
		return ProbeMurmur3, true
	case "xxh3":
		return ProbeXXH3, true
	default:
		return nil, false
	}
}
