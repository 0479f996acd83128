package usm

import (
	"bytes"
	"encoding/asn1"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

const (
	messageVersion3 = 3
	minMaxSize      = 484
	// DefaultMaxSize is the largest message a UDP/IPv4 transport can carry.
	DefaultMaxSize = 65507
)

type SecurityModel int32

const SecurityModelUSM SecurityModel = 3

type MessageFlag byte

const (
	MessageFlagAuth MessageFlag = 1 << iota
	MessageFlagPriv
	MessageFlagReportable
)

func NewMessageFlag(f []byte) (MessageFlag, error) {
	if len(f) != 1 {
		return 0, errors.Wrap(ErrInvalidMessage, "invalid message flag")
	}
	msgFlag := MessageFlag(f[0])
	if err := msgFlag.validate(); err != nil {
		return 0, err
	}
	return msgFlag, nil
}

func (f MessageFlag) validate() error {
	if f&MessageFlagPriv != 0 && f&MessageFlagAuth == 0 {
		return errors.Wrap(ErrInvalidMessage, "privacy flag set without authentication flag")
	}
	return nil
}

func (f MessageFlag) SecurityLevel() SecurityLevel {
	switch {
	case f&MessageFlagPriv != 0:
		return AuthPriv
	case f&MessageFlagAuth != 0:
		return AuthNoPriv
	}
	return NoAuthNoPriv
}

func (f MessageFlag) Reportable() bool {
	return f&MessageFlagReportable != 0
}

type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = iota
	AuthNoPriv
	AuthPriv
)

// Flags returns the message flags for the level, without the reportable bit.
func (l SecurityLevel) Flags() MessageFlag {
	switch l {
	case AuthNoPriv:
		return MessageFlagAuth
	case AuthPriv:
		return MessageFlagAuth | MessageFlagPriv
	}
	return 0
}

func (l SecurityLevel) String() string {
	switch l {
	case NoAuthNoPriv:
		return "noAuthNoPriv"
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	}
	return "unknown"
}

type Header struct {
	ID            int32
	MaxSize       int32
	Flags         MessageFlag
	SecurityModel SecurityModel
}

func (h Header) Marshal() ([]byte, error) {
	raw := struct {
		MsgID         int
		MaxSize       int
		Flags         []byte
		SecurityModel int
	}{int(h.ID), int(h.MaxSize), []byte{byte(h.Flags)}, int(h.SecurityModel)}
	return asn1.Marshal(raw)
}

func (h *Header) Unmarshal(d []byte) error {
	raw := struct {
		MsgID         int
		MaxSize       int
		Flags         []byte
		SecurityModel int
	}{}
	rest, err := asn1.Unmarshal(d, &raw)
	if err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if len(rest) > 0 {
		return errors.Wrap(ErrInvalidMessage, "trailing data after message header")
	}

	if raw.MsgID < 0 || raw.MsgID > math.MaxInt32 {
		return errors.Wrap(ErrInvalidMessage, "invalid message ID")
	}
	if raw.MaxSize < minMaxSize || raw.MaxSize > math.MaxInt32 {
		return errors.Wrap(ErrInvalidMessage, "invalid message max size")
	}
	if raw.SecurityModel < 1 || raw.SecurityModel > math.MaxInt32 {
		return errors.Wrap(ErrInvalidMessage, "invalid security model")
	}

	msgFlags, err := NewMessageFlag(raw.Flags)
	if err != nil {
		return err
	}

	h.ID = int32(raw.MsgID)
	h.MaxSize = int32(raw.MaxSize)
	h.Flags = msgFlags
	h.SecurityModel = SecurityModel(raw.SecurityModel)
	return nil
}

type SecurityParameters struct {
	AuthoritativeEngineID    EngineID
	AuthoritativeEngineBoots uint32
	AuthoritativeEngineTime  uint32
	UserName                 string
	AuthenticationParameters []byte
	PrivacyParameters        []byte
}

func (s SecurityParameters) clone() SecurityParameters {
	c := s
	c.AuthoritativeEngineID = EngineID(cloneBytes(s.AuthoritativeEngineID))
	c.AuthenticationParameters = cloneBytes(s.AuthenticationParameters)
	c.PrivacyParameters = cloneBytes(s.PrivacyParameters)
	return c
}

func (s SecurityParameters) Marshal() ([]byte, error) {
	raw := struct {
		EngineID    []byte
		EngineBoots int64
		EngineTime  int64
		UserName    []byte
		AuthParam   []byte
		PrivParam   []byte
	}{
		s.AuthoritativeEngineID,
		int64(s.AuthoritativeEngineBoots),
		int64(s.AuthoritativeEngineTime),
		[]byte(s.UserName),
		s.AuthenticationParameters,
		s.PrivacyParameters,
	}
	return asn1.Marshal(raw)
}

func (s *SecurityParameters) Unmarshal(d []byte) error {
	_, err := s.unmarshal(d)
	return err
}

// unmarshal decodes d and reports where the authentication parameter contents
// start within it.
func (s *SecurityParameters) unmarshal(d []byte) (int, error) {
	var seq asn1.RawValue
	rest, err := asn1.Unmarshal(d, &seq)
	if err != nil {
		return 0, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if len(rest) > 0 || seq.Class != asn1.ClassUniversal || seq.Tag != asn1.TagSequence || !seq.IsCompound {
		return 0, errors.Wrap(ErrInvalidMessage, "invalid security parameters")
	}

	var fields [6]asn1.RawValue
	var offsets [6]int
	off := len(seq.FullBytes) - len(seq.Bytes)
	body := seq.Bytes
	for i := range fields {
		next, err := asn1.Unmarshal(body, &fields[i])
		if err != nil {
			return 0, errors.Wrap(ErrInvalidMessage, err.Error())
		}
		offsets[i] = off + len(fields[i].FullBytes) - len(fields[i].Bytes)
		off += len(body) - len(next)
		body = next
	}
	if len(body) > 0 {
		return 0, errors.Wrap(ErrInvalidMessage, "trailing data in security parameters")
	}

	engineID, err := octets(fields[0], "engine ID")
	if err != nil {
		return 0, err
	}
	if len(engineID) > 0 {
		if _, err := NewEngineID(engineID); err != nil {
			return 0, err
		}
	}
	boots, err := nonNegative(fields[1], "engine boots")
	if err != nil {
		return 0, err
	}
	engineTime, err := nonNegative(fields[2], "engine time")
	if err != nil {
		return 0, err
	}
	userName, err := octets(fields[3], "user name")
	if err != nil {
		return 0, err
	}
	if len(userName) > 32 {
		return 0, errors.Wrap(ErrInvalidMessage, "user name longer than 32 octets")
	}
	authParams, err := octets(fields[4], "authentication parameters")
	if err != nil {
		return 0, err
	}
	privParams, err := octets(fields[5], "privacy parameters")
	if err != nil {
		return 0, err
	}

	s.AuthoritativeEngineID = EngineID(engineID)
	s.AuthoritativeEngineBoots = boots
	s.AuthoritativeEngineTime = engineTime
	s.UserName = string(userName)
	s.AuthenticationParameters = authParams
	s.PrivacyParameters = privParams
	return offsets[4], nil
}

func octets(v asn1.RawValue, what string) ([]byte, error) {
	if v.Class != asn1.ClassUniversal || v.Tag != asn1.TagOctetString || v.IsCompound {
		return nil, errors.Wrapf(ErrInvalidMessage, "%s is not an octet string", what)
	}
	return cloneEmpty(v.Bytes), nil
}

func nonNegative(v asn1.RawValue, what string) (uint32, error) {
	var n int64
	if _, err := asn1.Unmarshal(v.FullBytes, &n); err != nil {
		return 0, errors.Wrapf(ErrInvalidMessage, "%s: %v", what, err)
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, errors.Wrapf(ErrInvalidMessage, "invalid %s", what)
	}
	return uint32(n), nil
}

// cloneEmpty copies b, mapping empty contents to nil.
func cloneEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return cloneBytes(b)
}

// Message is an SNMPv3 message. Exactly one of ScopedPDU and EncryptedPDU is
// set: EncryptedPDU holds the ciphertext of a message whose privacy flag is set.
//
// A Message obtained from Unmarshal remembers its wire encoding so that
// authentication is checked against the bytes actually received. Once any
// exported field no longer matches that encoding, the message is
// authenticated over its re-encoded fields instead.
type Message struct {
	Header             Header
	SecurityParameters SecurityParameters
	ScopedPDU          *ScopedPDU
	EncryptedPDU       []byte

	raw        []byte
	authOffset int
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	c := m
	c.SecurityParameters = m.SecurityParameters.clone()
	if m.ScopedPDU != nil {
		pdu := m.ScopedPDU.clone()
		c.ScopedPDU = &pdu
	}
	if m.EncryptedPDU != nil {
		c.EncryptedPDU = append(make([]byte, 0, len(m.EncryptedPDU)), m.EncryptedPDU...)
	}
	c.raw = cloneBytes(m.raw)
	return c
}

func (m Message) Marshal() ([]byte, error) {
	if (m.ScopedPDU == nil) == (m.EncryptedPDU == nil) {
		return nil, errors.Wrap(ErrInvalidMessage, "message needs exactly one of a scoped PDU and an encrypted PDU")
	}
	header, err := m.Header.Marshal()
	if err != nil {
		return nil, err
	}
	sp, err := m.SecurityParameters.Marshal()
	if err != nil {
		return nil, err
	}
	var data []byte
	if m.EncryptedPDU != nil {
		data, err = asn1.Marshal(m.EncryptedPDU)
	} else {
		data, err = m.ScopedPDU.Marshal()
	}
	if err != nil {
		return nil, err
	}

	raw := struct {
		Version            int
		GlobalData         asn1.RawValue
		SecurityParameters []byte
		Data               asn1.RawValue
	}{messageVersion3, asn1.RawValue{FullBytes: header}, sp, asn1.RawValue{FullBytes: data}}
	return asn1.Marshal(raw)
}

func (m *Message) Unmarshal(d []byte) error {
	var seq asn1.RawValue
	rest, err := asn1.Unmarshal(d, &seq)
	if err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if len(rest) > 0 {
		return errors.Wrap(ErrInvalidMessage, "trailing data after message")
	}
	if seq.Class != asn1.ClassUniversal || seq.Tag != asn1.TagSequence || !seq.IsCompound {
		return errors.Wrap(ErrInvalidMessage, "message is not a sequence")
	}
	off := len(seq.FullBytes) - len(seq.Bytes)
	body := seq.Bytes

	var version int
	next, err := asn1.Unmarshal(body, &version)
	if err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if version != messageVersion3 {
		return errors.Wrapf(ErrInvalidMessage, "SNMP version %d is not implemented", version)
	}
	off += len(body) - len(next)
	body = next

	var globalData asn1.RawValue
	if next, err = asn1.Unmarshal(body, &globalData); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	var header Header
	if err := header.Unmarshal(globalData.FullBytes); err != nil {
		return err
	}
	off += len(body) - len(next)
	body = next

	var spRaw asn1.RawValue
	if next, err = asn1.Unmarshal(body, &spRaw); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if spRaw.Class != asn1.ClassUniversal || spRaw.Tag != asn1.TagOctetString || spRaw.IsCompound {
		return errors.Wrap(ErrInvalidMessage, "security parameters are not an octet string")
	}
	spOffset := off + len(spRaw.FullBytes) - len(spRaw.Bytes)
	var sp SecurityParameters
	authOffset, err := sp.unmarshal(spRaw.Bytes)
	if err != nil {
		return err
	}
	body = next

	var data asn1.RawValue
	if next, err = asn1.Unmarshal(body, &data); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if len(next) > 0 {
		return errors.Wrap(ErrInvalidMessage, "trailing data in message")
	}

	var scoped *ScopedPDU
	var encrypted []byte
	switch {
	case data.Class == asn1.ClassUniversal && data.Tag == asn1.TagOctetString && !data.IsCompound:
		encrypted = append(make([]byte, 0, len(data.Bytes)), data.Bytes...)
	case data.Class == asn1.ClassUniversal && data.Tag == asn1.TagSequence:
		var pdu ScopedPDU
		if err := pdu.Unmarshal(data.FullBytes); err != nil {
			return err
		}
		scoped = &pdu
	default:
		return errors.Wrap(ErrInvalidMessage, "unknown scoped PDU data type")
	}

	m.Header = header
	m.SecurityParameters = sp
	m.ScopedPDU = scoped
	m.EncryptedPDU = encrypted
	m.raw = cloneBytes(d)
	m.authOffset = spOffset + authOffset
	return nil
}

// authenticatedBytes is the serialized message with the authentication
// parameters zeroed, which is the input to the message MAC.
func (m Message) authenticatedBytes() ([]byte, error) {
	n := len(m.SecurityParameters.AuthenticationParameters)
	if m.raw != nil && m.matchesRaw() {
		end := m.authOffset + n
		if m.authOffset <= 0 || end > len(m.raw) {
			return nil, errors.Wrap(ErrInvalidMessage, "authentication parameters outside the message")
		}
		buf := cloneBytes(m.raw)
		for i := m.authOffset; i < end; i++ {
			buf[i] = 0
		}
		return buf, nil
	}
	c := m.Clone()
	c.SecurityParameters.AuthenticationParameters = make([]byte, n)
	return c.Marshal()
}

// matchesRaw reports whether the fields of m are still those decoded from m.raw.
func (m Message) matchesRaw() bool {
	var d Message
	if err := d.Unmarshal(m.raw); err != nil {
		return false
	}
	return d.authOffset == m.authOffset &&
		reflect.DeepEqual(d.Header, m.Header) &&
		reflect.DeepEqual(d.SecurityParameters, m.SecurityParameters) &&
		reflect.DeepEqual(d.ScopedPDU, m.ScopedPDU) &&
		bytes.Equal(d.EncryptedPDU, m.EncryptedPDU) &&
		(d.EncryptedPDU == nil) == (m.EncryptedPDU == nil)
}
