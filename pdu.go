package usm

import (
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/pkg/errors"
)

type PDUType int

const (
	PDUTypeGetRequest PDUType = iota
	PDUTypeGetNextRequest
	PDUTypeResponse
	PDUTypeSetRequest
	_ // obsolete
	PDUTypeGetBulkRequest
	PDUTypeInformRequest
	PDUTypeSNMPV2Trap
	PDUTypeReport
)

func (t PDUType) valid() bool {
	return t >= PDUTypeGetRequest && t <= PDUTypeReport && t != 4
}

type ErrorStatus int

const (
	ErrorStatusNoError ErrorStatus = iota
	ErrorStatusTooBig
	ErrorStatusNoSuchName
	ErrorStatusBadValue
	ErrorStatusReadOnly
	ErrorStatusGenErr
	ErrorStatusNoAccess
	ErrorStatusWrongType
	ErrorStatusWrongLength
	ErrorStatusWrongEncoding
	ErrorStatusWrongValue
	ErrorStatusNoCreation
	ErrorStatusInconsistentValue
	ErrorStatusResourceUnavailable
	ErrorStatusCommitFailed
	ErrorStatusUndoFailed
	ErrorStatusAuthorizationError
	ErrorStatusNotWritable
	ErrorStatusInconsistentName
)

type ScopedPDU struct {
	ContextEngineID EngineID
	ContextName     string
	PDU             PDU
}

func (s ScopedPDU) clone() ScopedPDU {
	c := s
	c.ContextEngineID = EngineID(cloneBytes(s.ContextEngineID))
	c.PDU = s.PDU.clone()
	return c
}

func (s ScopedPDU) Marshal() ([]byte, error) {
	pdu, err := s.PDU.Marshal()
	if err != nil {
		return nil, err
	}
	raw := struct {
		CtxEngineID []byte
		ContextName []byte
		Data        asn1.RawValue
	}{s.ContextEngineID, []byte(s.ContextName), asn1.RawValue{FullBytes: pdu}}
	return asn1.Marshal(raw)
}

// Unmarshal decodes d, which must hold exactly one scoped PDU.
func (s *ScopedPDU) Unmarshal(d []byte) error {
	pdu, rest, err := unmarshalScopedPDU(d)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return errors.Wrap(ErrInvalidMessage, "trailing data after scoped PDU")
	}
	*s = pdu
	return nil
}

// unmarshalScopedPDU decodes a scoped PDU from the front of d and returns the
// bytes that follow it.
func unmarshalScopedPDU(d []byte) (ScopedPDU, []byte, error) {
	raw := struct {
		CtxEngineID []byte
		ContextName []byte
		Data        asn1.RawValue
	}{}
	rest, err := asn1.Unmarshal(d, &raw)
	if err != nil {
		return ScopedPDU{}, nil, errors.Wrap(ErrInvalidMessage, err.Error())
	}

	if len(raw.CtxEngineID) > 0 {
		if _, err := NewEngineID(raw.CtxEngineID); err != nil {
			return ScopedPDU{}, nil, err
		}
	}

	var pdu PDU
	if err := pdu.unmarshalRaw(raw.Data); err != nil {
		return ScopedPDU{}, nil, err
	}

	return ScopedPDU{
		ContextEngineID: EngineID(cloneEmpty(raw.CtxEngineID)),
		ContextName:     string(raw.ContextName),
		PDU:             pdu,
	}, rest, nil
}

// PDU is an SNMPv2 protocol data unit. For PDUTypeGetBulkRequest, ErrorStatus
// and ErrorIndex carry non-repeaters and max-repetitions.
type PDU struct {
	Type             PDUType
	RequestID        int32
	ErrorStatus      ErrorStatus
	ErrorIndex       int32
	VariableBindings []VarBind
}

func (p PDU) NonRepeaters() int32 {
	return int32(p.ErrorStatus)
}

func (p PDU) MaxRepetitions() int32 {
	return p.ErrorIndex
}

func (p PDU) clone() PDU {
	c := p
	if p.VariableBindings != nil {
		c.VariableBindings = make([]VarBind, len(p.VariableBindings))
		for i, vb := range p.VariableBindings {
			c.VariableBindings[i] = vb.clone()
		}
	}
	return c
}

func (p PDU) Marshal() ([]byte, error) {
	if !p.Type.valid() {
		return nil, errors.Wrapf(ErrInvalidMessage, "unknown PDU type %d", p.Type)
	}
	varBinds := make([]asn1.RawValue, len(p.VariableBindings))
	for i, vb := range p.VariableBindings {
		b, err := vb.Marshal()
		if err != nil {
			return nil, err
		}
		varBinds[i] = asn1.RawValue{FullBytes: b}
	}
	raw := struct {
		ReqID            int
		ErrStatus        int
		ErrIdx           int
		VariableBindings []asn1.RawValue
	}{int(p.RequestID), int(p.ErrorStatus), int(p.ErrorIndex), varBinds}
	return asn1.MarshalWithParams(raw, fmt.Sprintf("tag:%d", p.Type))
}

func (p *PDU) Unmarshal(b []byte) error {
	var raw asn1.RawValue
	rest, err := asn1.Unmarshal(b, &raw)
	if err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if len(rest) > 0 {
		return errors.Wrap(ErrInvalidMessage, "trailing data after PDU")
	}
	return p.unmarshalRaw(raw)
}

func (p *PDU) unmarshalRaw(v asn1.RawValue) error {
	typ := PDUType(v.Tag)
	if v.Class != asn1.ClassContextSpecific || !v.IsCompound || !typ.valid() {
		return errors.Wrap(ErrInvalidMessage, "unknown PDU type")
	}

	raw := struct {
		ReqID            int
		ErrStatus        int
		ErrIdx           int
		VariableBindings []asn1.RawValue
	}{}
	if _, err := asn1.UnmarshalWithParams(v.FullBytes, &raw, fmt.Sprintf("tag:%d", typ)); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}

	if raw.ReqID < math.MinInt32 || raw.ReqID > math.MaxInt32 {
		return errors.Wrap(ErrInvalidMessage, "invalid request ID")
	}
	if raw.ErrStatus < 0 || raw.ErrStatus > math.MaxInt32 {
		return errors.Wrap(ErrInvalidMessage, "invalid error status")
	}
	if raw.ErrIdx < 0 || raw.ErrIdx > math.MaxInt32 {
		return errors.Wrap(ErrInvalidMessage, "invalid error index")
	}

	var varBinds []VarBind
	if len(raw.VariableBindings) > 0 {
		varBinds = make([]VarBind, len(raw.VariableBindings))
		for i, rawVarBind := range raw.VariableBindings {
			if err := varBinds[i].Unmarshal(rawVarBind.FullBytes); err != nil {
				return err
			}
		}
	}

	p.Type = typ
	p.RequestID = int32(raw.ReqID)
	p.ErrorStatus = ErrorStatus(raw.ErrStatus)
	p.ErrorIndex = int32(raw.ErrIdx)
	p.VariableBindings = varBinds
	return nil
}

// SMIv2 application types carried in variable bindings.
type (
	Counter32 uint32
	Gauge32   uint32
	TimeTicks uint32
	Counter64 uint64
	Opaque    []byte
)

const (
	appTagIPAddress = 0
	appTagCounter32 = 1
	appTagGauge32   = 2
	appTagTimeTicks = 3
	appTagOpaque    = 4
	appTagCounter64 = 6
)

// VarBind is a name/value pair. Value is one of nil (NULL), int, []byte,
// asn1.ObjectIdentifier, net.IP, Counter32, Gauge32, TimeTicks, Counter64,
// Opaque or ErrorValue.
type VarBind struct {
	Name  asn1.ObjectIdentifier
	Value interface{}
}

func (v VarBind) clone() VarBind {
	c := v
	c.Name = append(asn1.ObjectIdentifier(nil), v.Name...)
	switch value := v.Value.(type) {
	case []byte:
		c.Value = cloneBytes(value)
	case Opaque:
		c.Value = Opaque(cloneBytes(value))
	case net.IP:
		c.Value = net.IP(cloneBytes(value))
	case asn1.ObjectIdentifier:
		c.Value = append(asn1.ObjectIdentifier(nil), value...)
	}
	return c
}

func (v VarBind) Marshal() ([]byte, error) {
	value, err := marshalValue(v.Value)
	if err != nil {
		return nil, err
	}
	raw := struct {
		Name  asn1.ObjectIdentifier
		Value asn1.RawValue
	}{v.Name, asn1.RawValue{FullBytes: value}}
	return asn1.Marshal(raw)
}

func marshalValue(value interface{}) ([]byte, error) {
	switch value := value.(type) {
	case nil:
		return asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagNull})
	case int:
		return asn1.Marshal(int64(value))
	case int32:
		return asn1.Marshal(int64(value))
	case int64:
		return asn1.Marshal(value)
	case []byte:
		return asn1.Marshal(value)
	case string:
		return asn1.Marshal([]byte(value))
	case asn1.ObjectIdentifier:
		return asn1.Marshal(value)
	case net.IP:
		ip := value.To4()
		if ip == nil {
			return nil, errors.Errorf("%v is not an IPv4 address", value)
		}
		return asn1.Marshal(asn1.RawValue{Class: asn1.ClassApplication, Tag: appTagIPAddress, Bytes: ip})
	case Counter32:
		return marshalUnsigned(appTagCounter32, uint64(value))
	case Gauge32:
		return marshalUnsigned(appTagGauge32, uint64(value))
	case TimeTicks:
		return marshalUnsigned(appTagTimeTicks, uint64(value))
	case Counter64:
		return marshalUnsigned(appTagCounter64, uint64(value))
	case Opaque:
		return asn1.Marshal(asn1.RawValue{Class: asn1.ClassApplication, Tag: appTagOpaque, Bytes: value})
	case ErrorValue:
		switch value {
		case ErrorValueUnSpecified:
			return asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagNull})
		case ErrorValueNoSuchObject, ErrorValueNoSuchInstance, ErrorValueEndOfMIBView:
			return asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: value.Tag()})
		}
		return nil, errors.Errorf("unknown error value %d", value)
	}
	return nil, errors.Errorf("unsupported variable binding value %T", value)
}

func marshalUnsigned(tag int, n uint64) ([]byte, error) {
	b := make([]byte, 9)
	binary.BigEndian.PutUint64(b[1:], n)
	for len(b) > 1 && b[0] == 0 && b[1]&0x80 == 0 {
		b = b[1:]
	}
	return asn1.Marshal(asn1.RawValue{Class: asn1.ClassApplication, Tag: tag, Bytes: b})
}

func unmarshalUnsigned(b []byte, max uint64) (uint64, error) {
	if len(b) == 0 {
		return 0, errors.New("empty unsigned integer")
	}
	if b[0]&0x80 != 0 {
		return 0, errors.New("negative unsigned integer")
	}
	if len(b) > 9 || (len(b) == 9 && b[0] != 0) {
		return 0, errors.New("unsigned integer too large")
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	if n > max {
		return 0, errors.New("unsigned integer out of range")
	}
	return n, nil
}

func (v *VarBind) Unmarshal(b []byte) error {
	raw := struct {
		Name  asn1.ObjectIdentifier
		Value asn1.RawValue
	}{}
	if _, err := asn1.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}

	value, err := unmarshalValue(raw.Value)
	if err != nil {
		return errors.Wrapf(ErrInvalidMessage, "variable binding %v: %v", raw.Name, err)
	}

	v.Name = raw.Name
	v.Value = value
	return nil
}

func unmarshalValue(raw asn1.RawValue) (interface{}, error) {
	switch raw.Class {
	case asn1.ClassContextSpecific:
		switch raw.Tag {
		case ErrorValueNoSuchObject.Tag():
			return ErrorValueNoSuchObject, nil
		case ErrorValueNoSuchInstance.Tag():
			return ErrorValueNoSuchInstance, nil
		case ErrorValueEndOfMIBView.Tag():
			return ErrorValueEndOfMIBView, nil
		}
	case asn1.ClassApplication:
		switch raw.Tag {
		case appTagIPAddress:
			if len(raw.Bytes) != 4 {
				return nil, errors.New("invalid IP address")
			}
			return net.IP(cloneBytes(raw.Bytes)), nil
		case appTagCounter32, appTagGauge32, appTagTimeTicks:
			n, err := unmarshalUnsigned(raw.Bytes, math.MaxUint32)
			if err != nil {
				return nil, err
			}
			switch raw.Tag {
			case appTagCounter32:
				return Counter32(n), nil
			case appTagGauge32:
				return Gauge32(n), nil
			}
			return TimeTicks(n), nil
		case appTagOpaque:
			return Opaque(cloneBytes(raw.Bytes)), nil
		case appTagCounter64:
			n, err := unmarshalUnsigned(raw.Bytes, math.MaxUint64)
			if err != nil {
				return nil, err
			}
			return Counter64(n), nil
		}
	case asn1.ClassUniversal:
		switch raw.Tag {
		case asn1.TagInteger:
			var rv int
			if _, err := asn1.Unmarshal(raw.FullBytes, &rv); err != nil {
				return nil, err
			}
			return rv, nil
		case asn1.TagOctetString:
			var rv []byte
			if _, err := asn1.Unmarshal(raw.FullBytes, &rv); err != nil {
				return nil, err
			}
			return cloneEmpty(rv), nil
		case asn1.TagOID:
			var rv asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(raw.FullBytes, &rv); err != nil {
				return nil, err
			}
			return rv, nil
		case asn1.TagNull:
			return nil, nil
		}
	}
	return nil, errors.Errorf("unknown value type class %d tag %d", raw.Class, raw.Tag)
}

type ErrorValue int

const (
	ErrorValueUnknown ErrorValue = iota
	ErrorValueUnSpecified
	ErrorValueNoSuchObject
	ErrorValueNoSuchInstance
	ErrorValueEndOfMIBView
)

// Tag is the context-specific tag of an exception value. Other values have no
// tag and report 0.
func (e ErrorValue) Tag() int {
	switch e {
	case ErrorValueNoSuchObject:
		return 0
	case ErrorValueNoSuchInstance:
		return 1
	case ErrorValueEndOfMIBView:
		return 2
	}
	return 0
}
