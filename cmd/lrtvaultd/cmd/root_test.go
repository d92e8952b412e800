package cmd

import (
	"bytes"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/app"
)

func testAddr(b byte) string {
	return sdk.AccAddress(bytes.Repeat([]byte{b}, 20)).String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func initArgs(home string, extra ...string) []string {
	return append([]string{
		"init",
		"--home", home,
		"--chain-id", "lrtvault-test",
		"--authority", testAddr(1),
		"--operator", testAddr(2),
	}, extra...)
}

func TestInitWritesConfigAndGenesis(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, initArgs(home)...)
	require.NoError(t, err)

	cfg, err := app.LoadConfig(viper.New(), home)
	require.NoError(t, err)
	require.Equal(t, "lrtvault-test", cfg.ChainID)
	require.Equal(t, testAddr(1), cfg.Authority)
	require.Equal(t, testAddr(2), cfg.Operator)
	require.Len(t, cfg.Adapters, 1)

	gen, err := app.LoadGenesis(app.GenesisPath(home))
	require.NoError(t, err)
	require.NoError(t, gen.Validate())
	require.Equal(t, "lrtvault-test", gen.ChainID)
}

func TestInitRefusesToOverwriteGenesis(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, initArgs(home)...)
	require.NoError(t, err)

	_, err = run(t, initArgs(home)...)
	require.ErrorContains(t, err, "genesis already exists")

	_, err = run(t, initArgs(home, "--overwrite")...)
	require.NoError(t, err)
}

func TestInitRejectsInvalidAddress(t *testing.T) {
	_, err := run(t, "init", "--home", t.TempDir(), "--authority", "nope", "--operator", testAddr(2))
	require.Error(t, err)
}

func TestExportEmptyStore(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, initArgs(home)...)
	require.NoError(t, err)

	_, err = run(t, "export", "--home", home, "--log-level", "error")
	require.ErrorContains(t, err, "nothing to export")
}

func TestLogFlagsOverrideConfig(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, initArgs(home)...)
	require.NoError(t, err)

	_, err = run(t, "export", "--home", home, "--log-format", "xml")
	require.ErrorContains(t, err, "invalid log format")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, Version)
}

func TestConfigCommandIsMounted(t *testing.T) {
	cmd, _, err := NewRootCmd().Find([]string{"config", "view"})
	require.NoError(t, err)
	require.Equal(t, "view", cmd.Name())
}
