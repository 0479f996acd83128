package usm

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
)

// saltCounter hands out consecutive salts starting at a seed. With a non-zero
// limit it refuses to repeat a salt once limit values have been used.
type saltCounter struct {
	seed  uint64
	limit uint64
	used  atomic.Uint64
}

func newSaltCounter(seed *uint64, limit uint64) (*saltCounter, error) {
	s := &saltCounter{limit: limit}
	if seed != nil {
		s.seed = *seed
	} else {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, errors.Wrap(err, "seed privacy salt")
		}
		s.seed = binary.BigEndian.Uint64(b[:])
	}
	if limit != 0 {
		s.seed %= limit
	}
	return s, nil
}

func (s *saltCounter) next() (uint64, error) {
	n := s.used.Add(1) - 1
	if s.limit != 0 {
		if n >= s.limit {
			return 0, ErrSaltExhausted
		}
		return (s.seed + n) % s.limit, nil
	}
	return s.seed + n, nil
}
