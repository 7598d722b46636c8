package config

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Depth uint64 `yaml:"depth"`
}

func TestReadYAML(t *testing.T) {
	dir := t.TempDir()
	fname := path.Join(dir, "test.yml")
	require.NoError(t, os.WriteFile(fname, []byte("name: wallet\ndepth: 3\n"), 0644))

	var cfg testConfig
	msgs, _, ok := ReadYAML(fname, nil, &cfg)
	require.True(t, ok, "messages: %v", msgs)
	require.Equal(t, "wallet", cfg.Name)
	require.EqualValues(t, 3, cfg.Depth)
}

func TestReadYAMLFromDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "wallet.yml"), []byte("name: fromdir\n"), 0644))
	t.Setenv(DataDirEnv, dir)

	var cfg testConfig
	_, dataDir, ok := ReadYAML("wallet.yml", nil, &cfg)
	require.True(t, ok)
	require.Equal(t, dir, dataDir)
	require.Equal(t, "fromdir", cfg.Name)
}

func TestReadYAMLErrors(t *testing.T) {
	t.Setenv(DataDirEnv, "")
	var cfg testConfig
	_, _, ok := ReadYAML("does-not-exist.yml", nil, &cfg)
	require.False(t, ok)

	dir := t.TempDir()
	fname := path.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(fname, []byte("name: x\nunknownKey: 1\n"), 0644))
	_, _, ok = ReadYAML(fname, nil, &cfg)
	require.False(t, ok)
}
