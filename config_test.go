package usm_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tennashi/usm"
)

const tomlConfig = `
[engine]
id = "text:52564:foo"
time_window = 90

[log]
level = "debug"

[[users]]
name = "monitor"
auth_protocol = "sha256"
auth_password = "maplesyrup"

[[users]]
name = "admin"
engine_id = "0x8000cd5404666f6f"
auth_protocol = "SHA1"
auth_password = "maplesyrup"
priv_protocol = "aes"
priv_password = "foobar123"
`

const yamlConfig = `
engine:
  id: 8000cd5404666f6f
  boots: 4
users:
  - name: public
  - name: legacy
    auth_protocol: md5
    auth_password: maplesyrup
    priv_protocol: des-cbc
    priv_password: foobar123
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigTOML(t *testing.T) {
	cfg, err := usm.LoadConfig(writeConfig(t, "usm.toml", tomlConfig))
	require.NoError(t, err)

	require.Equal(t, "text:52564:foo", cfg.Engine.ID)
	require.Equal(t, uint32(1), cfg.Engine.Boots)
	require.Equal(t, 90*time.Second, cfg.TimeWindow())
	require.Equal(t, "debug", cfg.Log.Level)

	users, err := cfg.UserEntries()
	require.NoError(t, err)
	require.Equal(t, []usm.USMUserEntry{
		{Name: "monitor", AuthProtocol: usm.SHA256, AuthPassword: "maplesyrup"},
		{
			Name: "admin", EngineID: fooEngineID,
			AuthProtocol: usm.SHA1, AuthPassword: "maplesyrup",
			PrivProtocol: usm.AES128, PrivPassword: "foobar123",
		},
	}, users)
}

func TestLoadConfigYAML(t *testing.T) {
	cfg, err := usm.LoadConfig(writeConfig(t, "usm.yml", yamlConfig))
	require.NoError(t, err)

	require.Equal(t, uint32(4), cfg.Engine.Boots)
	require.Equal(t, usm.DefaultTimeWindow, cfg.TimeWindow())
	require.Equal(t, "info", cfg.Log.Level)

	users, err := cfg.UserEntries()
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, usm.NoAuthNoPriv, users[0].SecurityLevel())
	require.Equal(t, usm.DES, users[1].PrivProtocol)
}

func TestLoadConfigZeroBoots(t *testing.T) {
	cfg, err := usm.LoadConfig(writeConfig(t, "usm.toml", "[engine]\nid = \"text:52564:foo\"\nboots = 0\n"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), cfg.Engine.Boots)

	cfg, err = usm.LoadConfig(writeConfig(t, "usm.yaml", "engine:\n  id: text:52564:foo\n  boots: 0\n"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), cfg.Engine.Boots)

	cfg, err = usm.LoadConfig(writeConfig(t, "usm.yaml", "engine:\n  id: text:52564:foo\n"))
	require.NoError(t, err)
	require.Equal(t, uint32(1), cfg.Engine.Boots)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := map[string]string{
		"bad.toml": `
[engine]
id = "0x1234"
`,
		"algorithm.toml": `
[engine]
id = "text:52564:foo"
[[users]]
name = "x"
auth_protocol = "sha3"
auth_password = "maplesyrup"
`,
		"weak.toml": `
[engine]
id = "text:52564:foo"
[[users]]
name = "x"
auth_protocol = "sha1"
auth_password = "maplesyrup"
priv_protocol = "des"
priv_password = "short"
`,
		"duplicate.yaml": `
engine:
  id: text:52564:foo
users:
  - name: x
  - name: x
`,
		"unknown.yaml": `
engine:
  id: text:52564:foo
  colour: blue
`,
	}
	for name, content := range tests {
		_, err := usm.LoadConfig(writeConfig(t, name, content))
		require.Error(t, err, name)
	}

	_, err := usm.LoadConfig(writeConfig(t, "algorithm.toml", tests["algorithm.toml"]))
	require.True(t, errors.Is(err, usm.ErrUnsupportedAlgorithm))
	_, err = usm.LoadConfig(writeConfig(t, "weak.toml", tests["weak.toml"]))
	require.True(t, errors.Is(err, usm.ErrWeakCredential))

	_, err = usm.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestParseEngineID(t *testing.T) {
	for _, s := range []string{"8000cd5404666f6f", "0x8000cd5404666f6f", "text:52564:foo"} {
		id, err := usm.ParseEngineID(s)
		require.NoError(t, err, s)
		require.Equal(t, fooEngineID, id, s)
	}
	require.Equal(t, "8000cd5404666f6f", fooEngineID.String())

	for _, s := range []string{"", "zz", "0102", "text:52564:", "text:foo:bar", "text:4294967295:foo"} {
		_, err := usm.ParseEngineID(s)
		require.Error(t, err, s)
	}
}
