package usm

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bootsBucket = []byte("engine_boots")

// BootStore persists snmpEngineBoots across restarts. Counters are kept per
// engine ID, so a new engine ID starts again from zero.
//
//	The key is the engine ID
//	The value is the 4-byte boot counter (big endian)
type BootStore struct {
	db *bolt.DB
}

func OpenBootStore(path string) (*BootStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open boots file %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bootsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BootStore{db: db}, nil
}

func (s *BootStore) Close() error {
	return s.db.Close()
}

// Boots returns the stored counter for id, or zero when none is stored.
func (s *BootStore) Boots(id EngineID) (uint32, error) {
	var boots uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		boots = decodeBoots(tx.Bucket(bootsBucket).Get(id))
		return nil
	})
	return boots, err
}

// Increment advances and stores the counter for id, latching at 2147483647.
func (s *BootStore) Increment(id EngineID) (uint32, error) {
	if len(id) == 0 {
		return 0, errors.New("empty engine ID")
	}
	var boots uint32
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bootsBucket)
		boots = decodeBoots(bucket.Get(id))
		if boots < maxEngineBoots {
			boots++
		}
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], boots)
		return bucket.Put(id, v[:])
	})
	if err != nil {
		return 0, errors.Wrap(err, "store engine boots")
	}
	return boots, nil
}

func decodeBoots(v []byte) uint32 {
	if len(v) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}
