package usm

import (
	"crypto/hmac"

	"github.com/pkg/errors"
)

const authParamsLength = 12

// AuthenticationModule computes and verifies the HMAC carried in
// msgAuthenticationParameters. Every algorithm truncates the MAC to 12 octets.
type AuthenticationModule struct {
	proto  AuthProtocol
	digest *Digest
	keys   *KeyCache
}

// NewAuthenticationModule returns the module for one of SupportedAuthAlgorithms.
func NewAuthenticationModule(algorithm string, opts ...Option) (*AuthenticationModule, error) {
	proto, err := ParseAuthProtocol(algorithm)
	if err != nil {
		return nil, err
	}
	return newAuthenticationModule(proto, newOptions(opts))
}

func newAuthenticationModule(proto AuthProtocol, o options) (*AuthenticationModule, error) {
	digest, err := NewDigest(proto)
	if err != nil {
		return nil, err
	}
	return &AuthenticationModule{proto: proto, digest: digest, keys: o.keys}, nil
}

func (a *AuthenticationModule) Supports() []string {
	return SupportedAuthAlgorithms()
}

func (a *AuthenticationModule) Protocol() AuthProtocol {
	return a.proto
}

// Hash returns the full digest of data.
func (a *AuthenticationModule) Hash(data []byte) ([]byte, error) {
	return a.digest.Sum(data)
}

// GenerateKey returns the key for password localized to engineID.
func (a *AuthenticationModule) GenerateKey(password string, engineID EngineID) ([]byte, error) {
	return a.keys.Localized(a.proto, password, engineID)
}

// AuthenticateOutgoingMsg returns a copy of msg carrying its MAC.
func (a *AuthenticationModule) AuthenticateOutgoingMsg(msg Message, password string) (Message, error) {
	key, err := a.GenerateKey(password, msg.SecurityParameters.AuthoritativeEngineID)
	if err != nil {
		return Message{}, err
	}

	out := msg.Clone()
	out.raw = nil
	out.SecurityParameters.AuthenticationParameters = make([]byte, authParamsLength)
	data, err := out.Marshal()
	if err != nil {
		return Message{}, err
	}
	mac, err := a.mac(key, data)
	if err != nil {
		return Message{}, err
	}
	out.SecurityParameters.AuthenticationParameters = mac
	return out, nil
}

// AuthenticateIncomingMsg checks the MAC of msg. Decoded messages are checked
// against the bytes they were decoded from.
func (a *AuthenticationModule) AuthenticateIncomingMsg(msg Message, password string) (Message, error) {
	received := msg.SecurityParameters.AuthenticationParameters
	if len(received) != authParamsLength {
		return Message{}, errors.Wrapf(ErrAuthenticationFailure, "authentication parameters are %d octets", len(received))
	}
	key, err := a.GenerateKey(password, msg.SecurityParameters.AuthoritativeEngineID)
	if err != nil {
		return Message{}, err
	}
	data, err := msg.authenticatedBytes()
	if err != nil {
		return Message{}, err
	}
	expected, err := a.mac(key, data)
	if err != nil {
		return Message{}, err
	}
	if !hmac.Equal(expected, received) {
		return Message{}, ErrAuthenticationFailure
	}
	return msg.Clone(), nil
}

func (a *AuthenticationModule) mac(key, data []byte) ([]byte, error) {
	h, err := a.digest.hmac(key)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil)[:authParamsLength], nil
}
