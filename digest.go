package usm

import (
	"crypto"
	"crypto/hmac"
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"hash"

	"github.com/pkg/errors"
)

// Digest produces full-length digests for one authentication algorithm.
type Digest struct {
	proto AuthProtocol
	hash  crypto.Hash
}

// NewDigest fails with ErrUnsupportedAlgorithm for NoAuth or an unknown protocol.
func NewDigest(proto AuthProtocol) (*Digest, error) {
	h, ok := proto.hash()
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "digest for %v", proto)
	}
	return &Digest{proto: proto, hash: h}, nil
}

// Size is the digest output length in bytes.
func (d *Digest) Size() int {
	return d.hash.Size()
}

func (d *Digest) new() (hash.Hash, error) {
	if !d.hash.Available() {
		return nil, errors.Wrapf(ErrHashFailure, "%v is not linked into the binary", d.proto)
	}
	return d.hash.New(), nil
}

// Sum digests the concatenation of data.
func (d *Digest) Sum(data ...[]byte) ([]byte, error) {
	h, err := d.new()
	if err != nil {
		return nil, err
	}
	for _, b := range data {
		if _, err := h.Write(b); err != nil {
			return nil, errors.Wrap(ErrHashFailure, err.Error())
		}
	}
	return h.Sum(nil), nil
}

func (d *Digest) hmac(key []byte) (hash.Hash, error) {
	if !d.hash.Available() {
		return nil, errors.Wrapf(ErrHashFailure, "%v is not linked into the binary", d.proto)
	}
	return hmac.New(d.hash.New, key), nil
}
