package bloom

import (
	"errors"
	"fmt"
)

// ErrHash matches every *HashError via errors.Is.
var ErrHash = errors.New("bloom: error while hashing")

// HashError reports that an element could not be reduced to its probe bits.
//
// Probe is the probe number whose second-stage mix failed, or -1 when the
// element digest itself failed. Hash failures are deterministic for a given
// input, so callers should not retry them.
type HashError struct {
	Probe int
	Err   error
}

func (e *HashError) Error() string {
	if e.Probe < 0 {
		return fmt.Sprintf("bloom: error while hashing element: %v", e.Err)
	}
	return fmt.Sprintf("bloom: error while hashing probe %d: %v", e.Probe, e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrHash) match any HashError.
func (e *HashError) Is(target error) bool {
	return target == ErrHash
}
