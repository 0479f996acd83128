package usm_test

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tennashi/usm"
)

func newModules(t *testing.T, authAlg, privAlg string, opts ...usm.Option) (*usm.AuthenticationModule, *usm.PrivacyModule) {
	t.Helper()
	auth, err := usm.NewAuthenticationModule(authAlg, opts...)
	require.NoError(t, err)
	priv, err := usm.NewPrivacyModule(privAlg, opts...)
	require.NoError(t, err)
	return auth, priv
}

func TestDESEncryptData(t *testing.T) {
	auth, priv := newModules(t, "sha1", "des", usm.WithSaltSeed(900))

	out, err := priv.EncryptData(privVectorMessage(), auth, "foobar123")
	require.NoError(t, err)
	require.Nil(t, out.ScopedPDU)
	require.Equal(t, "0000000100000384", hex.EncodeToString(out.SecurityParameters.PrivacyParameters))
	require.Equal(t, "5e2b8c7bffbb23e13d57f9dfa6d80c01734bb339f7873c6b7320992cc2efb998", hex.EncodeToString(out.EncryptedPDU))

	out, err = priv.EncryptData(privVectorMessage(), auth, "foobar123")
	require.NoError(t, err)
	require.Equal(t, "0000000100000385", hex.EncodeToString(out.SecurityParameters.PrivacyParameters))
	require.Equal(t, "e857313919e753afcaaf01d12fcd3bede49b300877a04ca7af86b7bed7fc1e97", hex.EncodeToString(out.EncryptedPDU))
}

func TestDESDecryptData(t *testing.T) {
	auth, priv := newModules(t, "sha1", "des-cbc")

	msg := privVectorMessage()
	msg.ScopedPDU = nil
	msg.EncryptedPDU = unhex("5e2b8c7bffbb23e13d57f9dfa6d80c01734bb339f7873c6b94ef5f73dd625c374ff3bd78b0d1d8d9")
	msg.SecurityParameters.PrivacyParameters = unhex("0000000100000384")

	out, err := priv.DecryptData(msg, auth, "foobar123")
	require.NoError(t, err)
	require.Nil(t, out.EncryptedPDU)
	require.Equal(t, privVectorPDU(), out.ScopedPDU)
}

func TestDESDecryptMalformed(t *testing.T) {
	auth, priv := newModules(t, "md5", "des")

	msg := privVectorMessage()
	msg.ScopedPDU = nil
	msg.EncryptedPDU = unhex("ffaabb7bffbb23e13d57f9dfa6d80c01734bb339f7873c6b94ef5f73dd625c374ff3bd78b0d1d8d9")
	msg.SecurityParameters.PrivacyParameters = unhex("0000000100000384")

	_, err := priv.DecryptData(msg, auth, "foobar123")
	require.True(t, errors.Is(err, usm.ErrDecryptionFailure))

	msg.EncryptedPDU = msg.EncryptedPDU[:39]
	_, err = priv.DecryptData(msg, auth, "foobar123")
	require.True(t, errors.Is(err, usm.ErrDecryptionFailure))

	msg.EncryptedPDU = unhex("5e2b8c7bffbb23e13d57f9dfa6d80c01734bb339f7873c6b7320992cc2efb998")
	msg.SecurityParameters.PrivacyParameters = unhex("00000001000003")
	_, err = priv.DecryptData(msg, auth, "foobar123")
	require.True(t, errors.Is(err, usm.ErrDecryptionFailure))
}

func TestAESEncryptData(t *testing.T) {
	auth, priv := newModules(t, "sha1", "aes", usm.WithSaltSeed(900))

	out, err := priv.EncryptData(privVectorMessage(), auth, "foobar123")
	require.NoError(t, err)
	require.Equal(t, "0000000000000384", hex.EncodeToString(out.SecurityParameters.PrivacyParameters))
	require.Equal(t, "40790d9d2b48450fb731050074b9cad79c30572531da8db2af86ed", hex.EncodeToString(out.EncryptedPDU))

	dec, err := priv.DecryptData(out, auth, "foobar123")
	require.NoError(t, err)
	require.Equal(t, privVectorPDU(), dec.ScopedPDU)
}

func TestPrivacyRoundTrip(t *testing.T) {
	pdu := usm.ScopedPDU{
		ContextEngineID: fooEngineID,
		ContextName:     "bridge1",
		PDU: usm.PDU{
			Type:      usm.PDUTypeSetRequest,
			RequestID: 4711,
			VariableBindings: []usm.VarBind{
				{Name: []int{1, 3, 6, 1, 2, 1, 1, 5, 0}, Value: []byte("router-b")},
				{Name: []int{1, 3, 6, 1, 2, 1, 1, 3, 0}, Value: usm.TimeTicks(360000)},
			},
		},
	}
	for _, authAlg := range usm.SupportedAuthAlgorithms() {
		for _, privAlg := range []string{"des", "aes128", "aes192", "aes256"} {
			for _, pw := range []string{"12345678", "a much longer privacy passphrase"} {
				t.Run(fmt.Sprintf("%s/%s/%d", authAlg, privAlg, len(pw)), func(t *testing.T) {
					auth, priv := newModules(t, authAlg, privAlg)
					msg := privVectorMessage()
					msg.ScopedPDU = &pdu

					enc, err := priv.EncryptData(msg, auth, pw)
					require.NoError(t, err)
					require.Len(t, enc.SecurityParameters.PrivacyParameters, 8)

					dec, err := priv.DecryptData(enc, auth, pw)
					require.NoError(t, err)
					require.Equal(t, &pdu, dec.ScopedPDU)
				})
			}
		}
	}
}

func TestPrivacyShortPassword(t *testing.T) {
	for _, privAlg := range []string{"des", "aes128", "aes256"} {
		auth, priv := newModules(t, "sha1", privAlg)
		_, err := priv.EncryptData(privVectorMessage(), auth, "foobar1")
		require.True(t, errors.Is(err, usm.ErrWeakCredential), privAlg)

		msg := privVectorMessage()
		msg.ScopedPDU = nil
		msg.EncryptedPDU = make([]byte, 32)
		msg.SecurityParameters.PrivacyParameters = make([]byte, 8)
		_, err = priv.DecryptData(msg, auth, "foobar1")
		require.True(t, errors.Is(err, usm.ErrWeakCredential), privAlg)
	}
}

func TestTamperDetection(t *testing.T) {
	tests := []struct {
		privAlg    string
		ciphertext string
		privParams string
	}{
		{"des", "5e2b8c7bffbb23e13d57f9dfa6d80c01734bb339f7873c6b7320992cc2efb998", "0000000100000384"},
		{"aes128", "40790d9d2b48450fb731050074b9cad79c30572531da8db2af86ed", "0000000000000384"},
	}
	for _, tt := range tests {
		t.Run(tt.privAlg, func(t *testing.T) {
			auth, priv := newModules(t, "sha1", tt.privAlg)
			ciphertext := unhex(tt.ciphertext)
			privParams := unhex(tt.privParams)

			decrypt := func(ct, pp []byte) (usm.Message, error) {
				msg := privVectorMessage()
				msg.ScopedPDU = nil
				msg.EncryptedPDU = ct
				msg.SecurityParameters.PrivacyParameters = pp
				return priv.DecryptData(msg, auth, "foobar123")
			}
			check := func(ct, pp []byte) {
				out, err := decrypt(ct, pp)
				if err != nil {
					require.True(t, errors.Is(err, usm.ErrDecryptionFailure))
					return
				}
				require.NotEqual(t, privVectorPDU(), out.ScopedPDU)
			}

			out, err := decrypt(ciphertext, privParams)
			require.NoError(t, err)
			require.Equal(t, privVectorPDU(), out.ScopedPDU)

			for i := 0; i < len(ciphertext)*8; i++ {
				ct := append([]byte(nil), ciphertext...)
				ct[i/8] ^= 1 << (i % 8)
				check(ct, privParams)
			}
			for i := 0; i < len(privParams)*8; i++ {
				pp := append([]byte(nil), privParams...)
				pp[i/8] ^= 1 << (i % 8)
				check(ciphertext, pp)
			}
		})
	}
}

func TestDESSaltWraps(t *testing.T) {
	auth, priv := newModules(t, "md5", "des", usm.WithSaltSeed(0xfffffffe))

	out, err := priv.EncryptData(privVectorMessage(), auth, "foobar123")
	require.NoError(t, err)
	require.Equal(t, "00000001fffffffe", hex.EncodeToString(out.SecurityParameters.PrivacyParameters))

	out, err = priv.EncryptData(privVectorMessage(), auth, "foobar123")
	require.NoError(t, err)
	require.Equal(t, "00000001ffffffff", hex.EncodeToString(out.SecurityParameters.PrivacyParameters))

	out, err = priv.EncryptData(privVectorMessage(), auth, "foobar123")
	require.NoError(t, err)
	require.Equal(t, "0000000100000000", hex.EncodeToString(out.SecurityParameters.PrivacyParameters))
}

func TestNewPrivacyModuleUnsupported(t *testing.T) {
	_, err := usm.NewPrivacyModule("foo")
	require.True(t, errors.Is(err, usm.ErrUnsupportedAlgorithm))

	_, err = usm.NewPrivacyModule("")
	require.True(t, errors.Is(err, usm.ErrUnsupportedAlgorithm))
}
