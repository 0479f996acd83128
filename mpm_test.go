package usm_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tennashi/usm"
)

func TestPrepareDataElementsRejects(t *testing.T) {
	agent, _ := newPeers(t)

	msg := privVectorMessage()
	msg.Header.Flags = 0
	msg.Header.SecurityModel = 4
	wire, err := msg.Marshal()
	require.NoError(t, err)
	_, err = agent.mpm.PrepareDataElements(wire)
	require.True(t, errors.Is(err, usm.ErrInvalidMessage))

	_, err = agent.mpm.PrepareDataElements([]byte{0x30, 0x03, 0x02, 0x01, 0x01})
	require.True(t, errors.Is(err, usm.ErrInvalidMessage))
	require.Equal(t, usm.Statistics{}, agent.usm.Stats())
}

func TestPrepareOutgoingMessage(t *testing.T) {
	agent, manager := newPeers(t)

	req := request(agent.id, "monitor", usm.AuthNoPriv)
	req.MaxSize = 100
	_, err := manager.mpm.PrepareOutgoingMessage(req)
	require.True(t, errors.Is(err, usm.ErrInvalidMessage))

	req.MaxSize = 0
	wire, err := manager.mpm.PrepareOutgoingMessage(req)
	require.NoError(t, err)

	var msg usm.Message
	require.NoError(t, msg.Unmarshal(wire))
	require.Equal(t, int32(42), msg.Header.ID)
	require.Equal(t, int32(usm.DefaultMaxSize), msg.Header.MaxSize)
	require.Equal(t, usm.MessageFlagAuth|usm.MessageFlagReportable, msg.Header.Flags)
	require.Equal(t, "monitor", msg.SecurityParameters.UserName)
	require.Len(t, msg.SecurityParameters.AuthenticationParameters, 12)
	require.Nil(t, msg.SecurityParameters.PrivacyParameters)

	boots, _ := agent.local.BootsTime()
	require.Equal(t, boots, msg.SecurityParameters.AuthoritativeEngineBoots)
}
