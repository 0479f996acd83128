package usm

import "github.com/pkg/errors"

// Errors returned by the security subsystem. Wrapped errors keep these as their cause,
// so callers should match with errors.Is.
var (
	ErrUnsupportedAlgorithm     = errors.New("unsupported algorithm")
	ErrWeakCredential           = errors.New("password too short")
	ErrAuthenticationFailure    = errors.New("authentication failure")
	ErrNotInTimeWindow          = errors.New("not in time window")
	ErrDecryptionFailure        = errors.New("failed to assemble decrypted PDU")
	ErrHashFailure              = errors.New("hash failure")
	ErrUnknownEngineID          = errors.New("unknown engine ID")
	ErrUnknownUserName          = errors.New("unknown user name")
	ErrUnsupportedSecurityLevel = errors.New("unsupported security level")
	ErrSaltExhausted            = errors.New("privacy salt space exhausted")
	ErrInvalidMessage           = errors.New("invalid message")
)

var ErrCachedSecurityDataNotFound = errors.New("cached security data is not found")
