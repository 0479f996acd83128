package usm

import (
	"crypto/sha256"

	"github.com/cornelk/hashmap"
)

// KeyCache memoizes password-to-key and key localization results. It is safe for
// concurrent use. Entries are never modified once stored; two goroutines computing the
// same entry store identical values, so whichever insert wins is correct.
//
// A nil *KeyCache is valid and computes every key from scratch.
type KeyCache struct {
	table hashmap.HashMap
}

func NewKeyCache() *KeyCache {
	return &KeyCache{}
}

// Localized returns the key for password localized to engineID.
func (c *KeyCache) Localized(proto AuthProtocol, password string, engineID EngineID) ([]byte, error) {
	if c == nil {
		return GenerateKey(proto, password, engineID)
	}

	fp := sha256.Sum256([]byte(password))
	kuKey := "ku\x00" + proto.String() + "\x00" + string(fp[:])
	kulKey := "kul\x00" + proto.String() + "\x00" + string(fp[:]) + "\x00" + string(engineID)

	if v, ok := c.table.GetStringKey(kulKey); ok {
		return cloneBytes(v.([]byte)), nil
	}

	ku, err := c.getOrCompute(kuKey, func() ([]byte, error) {
		return PasswordToKey(proto, password)
	})
	if err != nil {
		return nil, err
	}
	return c.getOrCompute(kulKey, func() ([]byte, error) {
		return LocalizeKey(proto, ku, engineID)
	})
}

func (c *KeyCache) getOrCompute(key string, compute func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.table.GetStringKey(key); ok {
		return cloneBytes(v.([]byte)), nil
	}
	value, err := compute()
	if err != nil {
		return nil, err
	}
	actual, _ := c.table.GetOrInsert(key, value)
	return cloneBytes(actual.([]byte)), nil
}

// Len is the number of cached entries, password-to-key results included.
func (c *KeyCache) Len() int {
	if c == nil {
		return 0
	}
	return c.table.Len()
}

// Purge drops every entry.
func (c *KeyCache) Purge() {
	if c == nil {
		return
	}
	for kv := range c.table.Iter() {
		c.table.Del(kv.Key)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
