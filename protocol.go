package usm

import (
	"crypto"
	"strings"

	"github.com/pkg/errors"
)

// AuthProtocol is an authentication algorithm of the user-based security model.
type AuthProtocol int

const (
	NoAuth AuthProtocol = iota
	MD5
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512
)

var authProtocols = []struct {
	name  string
	proto AuthProtocol
	hash  crypto.Hash
}{
	{"md5", MD5, crypto.MD5},
	{"sha1", SHA1, crypto.SHA1},
	{"sha224", SHA224, crypto.SHA224},
	{"sha256", SHA256, crypto.SHA256},
	{"sha384", SHA384, crypto.SHA384},
	{"sha512", SHA512, crypto.SHA512},
}

// ParseAuthProtocol maps a case-insensitive identifier to an AuthProtocol.
// The empty string and "none" map to NoAuth.
func ParseAuthProtocol(s string) (AuthProtocol, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" || name == "none" {
		return NoAuth, nil
	}
	for _, p := range authProtocols {
		if p.name == name {
			return p.proto, nil
		}
	}
	return NoAuth, errors.Wrapf(ErrUnsupportedAlgorithm, "authentication algorithm %q", s)
}

// SupportedAuthAlgorithms returns the identifiers accepted by NewAuthenticationModule.
func SupportedAuthAlgorithms() []string {
	names := make([]string, len(authProtocols))
	for i, p := range authProtocols {
		names[i] = p.name
	}
	return names
}

func (p AuthProtocol) hash() (crypto.Hash, bool) {
	for _, a := range authProtocols {
		if a.proto == p {
			return a.hash, true
		}
	}
	return 0, false
}

func (p AuthProtocol) String() string {
	if p == NoAuth {
		return "none"
	}
	for _, a := range authProtocols {
		if a.proto == p {
			return a.name
		}
	}
	return "unknown"
}

// PrivProtocol is a privacy algorithm of the user-based security model.
type PrivProtocol int

const (
	NoPriv PrivProtocol = iota
	DES
	AES128
	AES192
	AES256
)

var privProtocols = []struct {
	name  string
	proto PrivProtocol
}{
	{"des", DES},
	{"des-cbc", DES},
	{"aes", AES128},
	{"aes128", AES128},
	{"aes192", AES192},
	{"aes256", AES256},
}

// ParsePrivProtocol maps a case-insensitive identifier to a PrivProtocol.
// The empty string and "none" map to NoPriv.
func ParsePrivProtocol(s string) (PrivProtocol, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" || name == "none" {
		return NoPriv, nil
	}
	for _, p := range privProtocols {
		if p.name == name {
			return p.proto, nil
		}
	}
	return NoPriv, errors.Wrapf(ErrUnsupportedAlgorithm, "privacy algorithm %q", s)
}

// SupportedPrivAlgorithms returns the identifiers accepted by NewPrivacyModule.
func SupportedPrivAlgorithms() []string {
	names := make([]string, len(privProtocols))
	for i, p := range privProtocols {
		names[i] = p.name
	}
	return names
}

func (p PrivProtocol) String() string {
	switch p {
	case NoPriv:
		return "none"
	case DES:
		return "des"
	case AES128:
		return "aes128"
	case AES192:
		return "aes192"
	case AES256:
		return "aes256"
	}
	return "unknown"
}
