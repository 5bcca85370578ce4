package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, "memory", cfg.Queue.Driver)
	require.Equal(t, 256, cfg.Queue.MemoryBuffer)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9999"
storage:
  driver: mysql
  dsn: "user:pass@tcp(127.0.0.1:3306)/antifraud"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.Address)
	require.Equal(t, "mysql", cfg.Storage.Driver)
	require.Equal(t, "user:pass@tcp(127.0.0.1:3306)/antifraud", cfg.Storage.DSN)
}

func TestLoadEnvVarOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: mysql
  dsn: "from-file"
`), 0o644))

	t.Setenv("CORE_STORAGE__DSN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "mysql", cfg.Storage.Driver)
	require.Equal(t, "from-env", cfg.Storage.DSN)
}
