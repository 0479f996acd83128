package usm

import (
	"github.com/pkg/errors"
)

const minPrivPasswordLength = 8

type privacyCipher interface {
	keyLength() int
	blockSize() int
	saltLimit() uint64
	encrypt(key []byte, salt uint64, sp SecurityParameters, plaintext []byte) (ciphertext, privParams []byte, err error)
	decrypt(key []byte, sp SecurityParameters, ciphertext []byte) ([]byte, error)
}

func newPrivacyCipher(proto PrivProtocol) (privacyCipher, error) {
	switch proto {
	case DES:
		return desCipher{}, nil
	case AES128:
		return aesCipher{size: 16}, nil
	case AES192:
		return aesCipher{size: 24}, nil
	case AES256:
		return aesCipher{size: 32}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "privacy protocol %v", proto)
}

// PrivacyModule encrypts and decrypts scoped PDUs. The privacy key is derived
// with the hash of the message's authentication module. Salts are unique per
// module instance.
type PrivacyModule struct {
	proto  PrivProtocol
	cipher privacyCipher
	salt   *saltCounter
	keys   *KeyCache
}

// NewPrivacyModule returns the module for one of SupportedPrivAlgorithms.
func NewPrivacyModule(algorithm string, opts ...Option) (*PrivacyModule, error) {
	proto, err := ParsePrivProtocol(algorithm)
	if err != nil {
		return nil, err
	}
	return newPrivacyModule(proto, newOptions(opts))
}

func newPrivacyModule(proto PrivProtocol, o options) (*PrivacyModule, error) {
	c, err := newPrivacyCipher(proto)
	if err != nil {
		return nil, err
	}
	salt, err := newSaltCounter(o.saltSeed, c.saltLimit())
	if err != nil {
		return nil, err
	}
	return &PrivacyModule{proto: proto, cipher: c, salt: salt, keys: o.keys}, nil
}

func (p *PrivacyModule) Supports() []string {
	return SupportedPrivAlgorithms()
}

func (p *PrivacyModule) Protocol() PrivProtocol {
	return p.proto
}

// EncryptData returns a copy of msg whose scoped PDU is replaced by its
// ciphertext, with the salt in msgPrivacyParameters.
func (p *PrivacyModule) EncryptData(msg Message, auth *AuthenticationModule, password string) (Message, error) {
	if msg.ScopedPDU == nil {
		return Message{}, errors.Wrap(ErrInvalidMessage, "no scoped PDU to encrypt")
	}
	key, err := p.Key(auth, password, msg.SecurityParameters.AuthoritativeEngineID)
	if err != nil {
		return Message{}, err
	}
	plaintext, err := msg.ScopedPDU.Marshal()
	if err != nil {
		return Message{}, err
	}
	salt, err := p.salt.next()
	if err != nil {
		return Message{}, err
	}
	ciphertext, privParams, err := p.cipher.encrypt(key, salt, msg.SecurityParameters, plaintext)
	if err != nil {
		return Message{}, err
	}

	out := msg.Clone()
	out.raw = nil
	out.ScopedPDU = nil
	out.EncryptedPDU = ciphertext
	out.SecurityParameters.PrivacyParameters = privParams
	return out, nil
}

// DecryptData returns a copy of msg with its encrypted PDU decrypted and
// decoded. Up to one cipher block of bytes after the scoped PDU is tolerated.
func (p *PrivacyModule) DecryptData(msg Message, auth *AuthenticationModule, password string) (Message, error) {
	if msg.EncryptedPDU == nil {
		return Message{}, errors.Wrap(ErrDecryptionFailure, "no encrypted PDU")
	}
	key, err := p.Key(auth, password, msg.SecurityParameters.AuthoritativeEngineID)
	if err != nil {
		return Message{}, err
	}
	plaintext, err := p.cipher.decrypt(key, msg.SecurityParameters, msg.EncryptedPDU)
	if err != nil {
		return Message{}, errors.Wrap(ErrDecryptionFailure, err.Error())
	}
	pdu, rest, err := unmarshalScopedPDU(plaintext)
	if err != nil {
		return Message{}, errors.Wrap(ErrDecryptionFailure, err.Error())
	}
	if len(rest) > p.cipher.blockSize() {
		return Message{}, errors.Wrapf(ErrDecryptionFailure, "%d octets after the scoped PDU", len(rest))
	}

	out := msg.Clone()
	out.raw = nil
	out.EncryptedPDU = nil
	out.ScopedPDU = &pdu
	return out, nil
}

// Key returns the privacy key for password at engineID, derived with the hash of
// auth and extended to the cipher key length when the digest is too short.
func (p *PrivacyModule) Key(auth *AuthenticationModule, password string, engineID EngineID) ([]byte, error) {
	if len(password) < minPrivPasswordLength {
		return nil, errors.Wrapf(ErrWeakCredential, "privacy password needs at least %d characters", minPrivPasswordLength)
	}
	if auth == nil {
		return nil, errors.Wrap(ErrUnsupportedSecurityLevel, "privacy without an authentication module")
	}
	kul, err := p.keys.Localized(auth.Protocol(), password, engineID)
	if err != nil {
		return nil, err
	}
	return extendKey(auth.Protocol(), kul, p.cipher.keyLength())
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
