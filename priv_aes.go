package usm

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/pkg/errors"
)

// aesCipher is CFB128-AES (RFC 3826). The IV is snmpEngineBoots,
// snmpEngineTime and the 64-bit salt; no padding is applied.
type aesCipher struct {
	size int
}

func (c aesCipher) keyLength() int { return c.size }

func (aesCipher) blockSize() int { return aes.BlockSize }

func (aesCipher) saltLimit() uint64 { return 0 }

func (c aesCipher) encrypt(key []byte, salt uint64, sp SecurityParameters, plaintext []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(key[:c.size])
	if err != nil {
		return nil, nil, err
	}
	privParams := make([]byte, 8)
	binary.BigEndian.PutUint64(privParams, salt)

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, aesIV(sp, privParams)).XORKeyStream(ciphertext, plaintext)
	return ciphertext, privParams, nil
}

func (c aesCipher) decrypt(key []byte, sp SecurityParameters, ciphertext []byte) ([]byte, error) {
	if len(sp.PrivacyParameters) != 8 {
		return nil, errors.Errorf("privacy parameters are %d octets", len(sp.PrivacyParameters))
	}
	if len(ciphertext) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	block, err := aes.NewCipher(key[:c.size])
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, aesIV(sp, sp.PrivacyParameters)).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func aesIV(sp SecurityParameters, privParams []byte) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv, sp.AuthoritativeEngineBoots)
	binary.BigEndian.PutUint32(iv[4:], sp.AuthoritativeEngineTime)
	copy(iv[8:], privParams)
	return iv
}
