package usm_test

import (
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tennashi/usm"
)

func TestDigestVectorMessageEncoding(t *testing.T) {
	wire, err := digestVectorMessage().Marshal()
	require.NoError(t, err)
	require.Equal(t, "304d020103300e020101020300ffe3040103020103042230200403666f6f0201010201010403666f6f040c000000000000000000000000040030140403666f6f0400a00b0201000201000201003000",
		hex.EncodeToString(wire))
}

func TestAuthenticateOutgoingMsg(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string
	}{
		{"md5", "ac04424fc8acff6b9310a03c"},
		{"sha1", "99eb7f99437037b6743d61c1"},
		{"sha224", "adfba471ad815ba8192baf23"},
		{"sha256", "02bf24eda5b18ac7697d5fef"},
		{"sha384", "9105807357a0e847c5a60b84"},
		{"sha512", "8aabd7f1c7b6f513957c6065"},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			auth, err := usm.NewAuthenticationModule(tt.algorithm)
			require.NoError(t, err)

			msg := digestVectorMessage()
			out, err := auth.AuthenticateOutgoingMsg(msg, "maplesyrup")
			require.NoError(t, err)
			require.Equal(t, tt.want, hex.EncodeToString(out.SecurityParameters.AuthenticationParameters))

			// the input is left untouched
			require.Equal(t, make([]byte, 12), msg.SecurityParameters.AuthenticationParameters)

			again, err := auth.AuthenticateOutgoingMsg(msg, "maplesyrup")
			require.NoError(t, err)
			require.Equal(t, out, again)

			_, err = auth.AuthenticateIncomingMsg(out, "maplesyrup")
			require.NoError(t, err)
		})
	}
}

func TestAuthenticateIncomingMsgRejects(t *testing.T) {
	auth, err := usm.NewAuthenticationModule("sha1")
	require.NoError(t, err)
	out, err := auth.AuthenticateOutgoingMsg(digestVectorMessage(), "maplesyrup")
	require.NoError(t, err)

	_, err = auth.AuthenticateIncomingMsg(out, "maplesyrop")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	tampered := out.Clone()
	tampered.SecurityParameters.AuthenticationParameters[11] ^= 0x01
	_, err = auth.AuthenticateIncomingMsg(tampered, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	tampered = out.Clone()
	tampered.ScopedPDU.PDU.RequestID = 1
	_, err = auth.AuthenticateIncomingMsg(tampered, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	short := out.Clone()
	short.SecurityParameters.AuthenticationParameters = short.SecurityParameters.AuthenticationParameters[:10]
	_, err = auth.AuthenticateIncomingMsg(short, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	md5, err := usm.NewAuthenticationModule("md5")
	require.NoError(t, err)
	_, err = md5.AuthenticateIncomingMsg(out, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))
}

func TestAuthenticateIncomingWireBytes(t *testing.T) {
	auth, err := usm.NewAuthenticationModule("sha256")
	require.NoError(t, err)

	msg := privVectorMessage()
	msg.Header.Flags = usm.MessageFlagAuth
	out, err := auth.AuthenticateOutgoingMsg(msg, "maplesyrup")
	require.NoError(t, err)
	wire, err := out.Marshal()
	require.NoError(t, err)

	var received usm.Message
	require.NoError(t, received.Unmarshal(wire))
	_, err = auth.AuthenticateIncomingMsg(received, "maplesyrup")
	require.NoError(t, err)

	// request ID value octet
	wire[len(wire)-9] ^= 0x01
	var tampered usm.Message
	require.NoError(t, tampered.Unmarshal(wire))
	require.Equal(t, int32(1), tampered.ScopedPDU.PDU.RequestID)
	_, err = auth.AuthenticateIncomingMsg(tampered, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))
}

func TestAuthenticateIncomingEditedMessage(t *testing.T) {
	auth, err := usm.NewAuthenticationModule("sha1")
	require.NoError(t, err)

	msg := privVectorMessage()
	msg.Header.Flags = usm.MessageFlagAuth
	out, err := auth.AuthenticateOutgoingMsg(msg, "maplesyrup")
	require.NoError(t, err)
	wire, err := out.Marshal()
	require.NoError(t, err)

	decode := func() usm.Message {
		var m usm.Message
		require.NoError(t, m.Unmarshal(wire))
		return m
	}

	edited := decode()
	edited.ScopedPDU.ContextName = "other"
	_, err = auth.AuthenticateIncomingMsg(edited, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	edited = decode()
	edited.ScopedPDU = nil
	edited.EncryptedPDU = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	_, err = auth.AuthenticateIncomingMsg(edited, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	edited = decode()
	edited.SecurityParameters.AuthoritativeEngineBoots = 9
	_, err = auth.AuthenticateIncomingMsg(edited, "maplesyrup")
	require.True(t, errors.Is(err, usm.ErrAuthenticationFailure))

	got, err := auth.AuthenticateIncomingMsg(decode().Clone(), "maplesyrup")
	require.NoError(t, err)
	require.Equal(t, msg.ScopedPDU, got.ScopedPDU)
}

func TestNewAuthenticationModuleUnsupported(t *testing.T) {
	_, err := usm.NewAuthenticationModule("foo")
	require.True(t, errors.Is(err, usm.ErrUnsupportedAlgorithm))

	_, err = usm.NewAuthenticationModule("none")
	require.True(t, errors.Is(err, usm.ErrUnsupportedAlgorithm))
}

func TestAuthenticationModuleHash(t *testing.T) {
	auth, err := usm.NewAuthenticationModule("SHA1")
	require.NoError(t, err)
	require.Equal(t, usm.SHA1, auth.Protocol())
	require.Len(t, auth.Supports(), 6)

	sum, err := auth.Hash([]byte("foobar123"))
	require.NoError(t, err)
	require.Equal(t, "6ffd8b80f2a76ca670ae33ab196f7936d59fb43b", hex.EncodeToString(sum))

	kul, err := auth.GenerateKey("maplesyrup", rfcEngineID)
	require.NoError(t, err)
	require.Equal(t, "6695febc9288e36282235fc7151f128497b38f3f", hex.EncodeToString(kul))
}
