package usm_test

import (
	"encoding/hex"

	"github.com/tennashi/usm"
)

func unhex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// fooEngineID is text engine ID "foo" under enterprise 52564.
var fooEngineID = usm.EngineID(unhex("8000cd5404666f6f"))

// digestVectorMessage is a GetRequest to engine "foo" with zeroed
// authentication parameters.
func digestVectorMessage() usm.Message {
	return usm.Message{
		Header: usm.Header{
			ID:            1,
			MaxSize:       65507,
			Flags:         usm.MessageFlagAuth | usm.MessageFlagPriv,
			SecurityModel: usm.SecurityModelUSM,
		},
		SecurityParameters: usm.SecurityParameters{
			AuthoritativeEngineID:    usm.EngineID("foo"),
			AuthoritativeEngineBoots: 1,
			AuthoritativeEngineTime:  1,
			UserName:                 "foo",
			AuthenticationParameters: make([]byte, 12),
		},
		ScopedPDU: &usm.ScopedPDU{
			ContextEngineID: usm.EngineID("foo"),
			PDU:             usm.PDU{Type: usm.PDUTypeGetRequest},
		},
	}
}

// privVectorMessage is a GetRequest to fooEngineID at boots 1, time 1.
func privVectorMessage() usm.Message {
	return usm.Message{
		Header: usm.Header{
			ID:            1,
			MaxSize:       65507,
			Flags:         usm.MessageFlagAuth | usm.MessageFlagPriv,
			SecurityModel: usm.SecurityModelUSM,
		},
		SecurityParameters: usm.SecurityParameters{
			AuthoritativeEngineID:    fooEngineID,
			AuthoritativeEngineBoots: 1,
			AuthoritativeEngineTime:  1,
			UserName:                 "foo",
		},
		ScopedPDU: privVectorPDU(),
	}
}

func privVectorPDU() *usm.ScopedPDU {
	return &usm.ScopedPDU{
		ContextEngineID: fooEngineID,
		PDU:             usm.PDU{Type: usm.PDUTypeGetRequest},
	}
}
