package bloom

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"golang.org/x/exp/constraints"
)

// HashFunc is the first hashing stage: a deterministic, value-based 64-bit
// digest. Equal elements must produce equal digests. It need not be
// cryptographic.
type HashFunc[T any] func(T) (uint64, error)

// StringHash digests a string with xxHash64.
func StringHash(s string) (uint64, error) {
	return xxhash.Sum64String(s), nil
}

// BytesHash digests a byte slice with xxHash64.
func BytesHash(b []byte) (uint64, error) {
	return xxhash.Sum64(b), nil
}

// IntegerHash digests an integer by its value, as 8 big-endian bytes of its
// 64-bit two's complement form. int32(5) and uint8(5) digest identically.
func IntegerHash[T constraints.Integer](v T) (uint64, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:]), nil
}

// BinaryHash digests a fixed-size value (numbers, bools, arrays and structs
// of those) through its big-endian encoding/binary layout. Values without a
// fixed size, such as strings, slices or maps, return an error.
func BinaryHash[T any](v T) (uint64, error) {
	d := xxhash.New()
	if err := binary.Write(d, binary.BigEndian, v); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

// JSONHash digests any JSON-encodable value through its canonical JSON form.
// Struct fields keep declaration order and map keys are sorted, so equal
// values produce equal digests. Unsupported values such as channels or
// functions return an error.
func JSONHash[T any](v T) (uint64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}

// NewInteger creates a filter over any integer type digested with IntegerHash.
func NewInteger[T constraints.Integer](capacity uint64, probeCount uint32, opts ...Option) (*Filter[T], error) {
	return New[T](capacity, probeCount, IntegerHash[T], opts...)
}
