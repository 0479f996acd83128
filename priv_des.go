package usm

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"

	"github.com/pkg/errors"
)

// desCipher is CBC-DES (RFC 3414 8.1.1). The privacy key holds the DES key
// followed by the pre-IV; the salt is snmpEngineBoots followed by a 32-bit counter.
type desCipher struct{}

func (desCipher) keyLength() int { return 16 }

func (desCipher) blockSize() int { return des.BlockSize }

func (desCipher) saltLimit() uint64 { return 1 << 32 }

func (desCipher) encrypt(key []byte, salt uint64, sp SecurityParameters, plaintext []byte) ([]byte, []byte, error) {
	block, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, nil, err
	}
	privParams := make([]byte, 8)
	binary.BigEndian.PutUint32(privParams, sp.AuthoritativeEngineBoots)
	binary.BigEndian.PutUint32(privParams[4:], uint32(salt))
	iv := xorBytes(key[8:16], privParams)

	padded := pad(plaintext, des.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, privParams, nil
}

func (desCipher) decrypt(key []byte, sp SecurityParameters, ciphertext []byte) ([]byte, error) {
	if len(sp.PrivacyParameters) != 8 {
		return nil, errors.Errorf("privacy parameters are %d octets", len(sp.PrivacyParameters))
	}
	if len(ciphertext) == 0 || len(ciphertext)%des.BlockSize != 0 {
		return nil, errors.Errorf("ciphertext of %d octets is not a whole number of blocks", len(ciphertext))
	}
	block, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	iv := xorBytes(key[8:16], sp.PrivacyParameters)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext, des.BlockSize)
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(cloneBytes(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.Errorf("invalid padding length %d", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
