package usm

import (
	"github.com/pkg/errors"
)

// MessageProcessingModel is the SNMPv3 message processing model: it decodes and
// encodes whole messages and hands them to the security coordinator.
type MessageProcessingModel struct {
	usm *Coordinator
}

func NewMessageProcessingModel(usm *Coordinator) *MessageProcessingModel {
	return &MessageProcessingModel{usm: usm}
}

// PrepareDataElements decodes data and runs the incoming security checks.
func (m *MessageProcessingModel) PrepareDataElements(data []byte) (Message, error) {
	msg := Message{}
	if err := msg.Unmarshal(data); err != nil {
		return Message{}, err
	}
	if msg.Header.SecurityModel != SecurityModelUSM {
		return Message{}, errors.Wrapf(ErrInvalidMessage, "security model %d is not implemented", msg.Header.SecurityModel)
	}
	return m.usm.ProcessIncomingMsg(msg)
}

// OutgoingRequest is what the layer above hands in to send one scoped PDU.
type OutgoingRequest struct {
	MessageID     int32
	MaxSize       int32
	SecurityLevel SecurityLevel
	Reportable    bool
	EngineID      EngineID
	UserName      string
	ScopedPDU     ScopedPDU
}

// PrepareOutgoingMessage builds, secures and encodes a message for req.
func (m *MessageProcessingModel) PrepareOutgoingMessage(req OutgoingRequest) ([]byte, error) {
	flags := req.SecurityLevel.Flags()
	if req.Reportable {
		flags |= MessageFlagReportable
	}
	maxSize := req.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if maxSize < minMaxSize {
		return nil, errors.Wrapf(ErrInvalidMessage, "max size %d below %d", maxSize, minMaxSize)
	}

	pdu := req.ScopedPDU
	msg := Message{
		Header: Header{
			ID:            req.MessageID,
			MaxSize:       maxSize,
			Flags:         flags,
			SecurityModel: SecurityModelUSM,
		},
		SecurityParameters: SecurityParameters{
			AuthoritativeEngineID: req.EngineID,
			UserName:              req.UserName,
		},
		ScopedPDU: &pdu,
	}
	out, err := m.usm.GenerateOutgoingMsg(msg)
	if err != nil {
		return nil, err
	}
	return out.Marshal()
}
