package usm

import (
	"github.com/pkg/errors"
)

const (
	passwordExpansionSize = 1 << 20
	passwordChunkSize     = 64
)

// PasswordToKey stretches password into a digest-sized key (RFC 3414 A.2).
// The password is repeated to fill 1 MiB, which is digested in 64-byte chunks.
func PasswordToKey(proto AuthProtocol, password string) ([]byte, error) {
	d, err := NewDigest(proto)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errors.Wrap(ErrWeakCredential, "empty password")
	}
	h, err := d.new()
	if err != nil {
		return nil, err
	}

	p := []byte(password)
	var chunk [passwordChunkSize]byte
	idx := 0
	for count := 0; count < passwordExpansionSize; count += passwordChunkSize {
		for i := range chunk {
			chunk[i] = p[idx]
			idx++
			if idx == len(p) {
				idx = 0
			}
		}
		h.Write(chunk[:])
	}
	return h.Sum(nil), nil
}

// LocalizeKey binds ku to one engine: digest(ku || engineID || ku).
func LocalizeKey(proto AuthProtocol, ku []byte, engineID EngineID) ([]byte, error) {
	d, err := NewDigest(proto)
	if err != nil {
		return nil, err
	}
	return d.Sum(ku, engineID, ku)
}

// GenerateKey derives the localized key for password at engineID.
func GenerateKey(proto AuthProtocol, password string, engineID EngineID) ([]byte, error) {
	ku, err := PasswordToKey(proto, password)
	if err != nil {
		return nil, err
	}
	return LocalizeKey(proto, ku, engineID)
}

// extendKey grows a localized key to size bytes by appending the digest of
// everything accumulated so far.
func extendKey(proto AuthProtocol, kul []byte, size int) ([]byte, error) {
	if len(kul) >= size {
		return kul[:size], nil
	}
	d, err := NewDigest(proto)
	if err != nil {
		return nil, err
	}
	key := append(make([]byte, 0, size+d.Size()), kul...)
	for len(key) < size {
		h, err := d.Sum(key)
		if err != nil {
			return nil, err
		}
		key = append(key, h...)
	}
	return key[:size], nil
}
