package usm

import (
	"encoding/asn1"
	"sync/atomic"

	"github.com/pkg/errors"
)

// usmStats counters (RFC 3414 usmStats, 1.3.6.1.6.3.15.1.1).
var (
	OIDUnsupportedSecLevels = asn1.ObjectIdentifier{1, 3, 6, 1, 6, 3, 15, 1, 1, 1, 0}
	OIDNotInTimeWindows     = asn1.ObjectIdentifier{1, 3, 6, 1, 6, 3, 15, 1, 1, 2, 0}
	OIDUnknownUserNames     = asn1.ObjectIdentifier{1, 3, 6, 1, 6, 3, 15, 1, 1, 3, 0}
	OIDUnknownEngineIDs     = asn1.ObjectIdentifier{1, 3, 6, 1, 6, 3, 15, 1, 1, 4, 0}
	OIDWrongDigests         = asn1.ObjectIdentifier{1, 3, 6, 1, 6, 3, 15, 1, 1, 5, 0}
	OIDDecryptionErrors     = asn1.ObjectIdentifier{1, 3, 6, 1, 6, 3, 15, 1, 1, 6, 0}
)

// Statistics is a snapshot of the usmStats counters.
type Statistics struct {
	UnsupportedSecLevels uint32
	NotInTimeWindows     uint32
	UnknownUserNames     uint32
	UnknownEngineIDs     uint32
	WrongDigests         uint32
	DecryptionErrors     uint32
}

type statCounter int

const (
	statUnsupportedSecLevels statCounter = iota
	statNotInTimeWindows
	statUnknownUserNames
	statUnknownEngineIDs
	statWrongDigests
	statDecryptionErrors
	statCount
)

var statOIDs = [statCount]asn1.ObjectIdentifier{
	OIDUnsupportedSecLevels,
	OIDNotInTimeWindows,
	OIDUnknownUserNames,
	OIDUnknownEngineIDs,
	OIDWrongDigests,
	OIDDecryptionErrors,
}

type usmStats struct {
	counters [statCount]atomic.Uint32
}

// classify maps an incoming processing error to the counter it increments.
func classify(err error) (statCounter, bool) {
	switch {
	case errors.Is(err, ErrUnsupportedSecurityLevel):
		return statUnsupportedSecLevels, true
	case errors.Is(err, ErrNotInTimeWindow):
		return statNotInTimeWindows, true
	case errors.Is(err, ErrUnknownUserName):
		return statUnknownUserNames, true
	case errors.Is(err, ErrUnknownEngineID):
		return statUnknownEngineIDs, true
	case errors.Is(err, ErrAuthenticationFailure):
		return statWrongDigests, true
	case errors.Is(err, ErrDecryptionFailure):
		return statDecryptionErrors, true
	}
	return 0, false
}

func (s *usmStats) record(err error) {
	if c, ok := classify(err); ok {
		s.counters[c].Add(1)
	}
}

func (s *usmStats) snapshot() Statistics {
	return Statistics{
		UnsupportedSecLevels: s.counters[statUnsupportedSecLevels].Load(),
		NotInTimeWindows:     s.counters[statNotInTimeWindows].Load(),
		UnknownUserNames:     s.counters[statUnknownUserNames].Load(),
		UnknownEngineIDs:     s.counters[statUnknownEngineIDs].Load(),
		WrongDigests:         s.counters[statWrongDigests].Load(),
		DecryptionErrors:     s.counters[statDecryptionErrors].Load(),
	}
}

// reportVarBind is the variable binding a Report PDU carries for err.
func (s *usmStats) reportVarBind(err error) (VarBind, bool) {
	c, ok := classify(err)
	if !ok {
		return VarBind{}, false
	}
	return VarBind{
		Name:  append(asn1.ObjectIdentifier(nil), statOIDs[c]...),
		Value: Counter32(s.counters[c].Load()),
	}, true
}
