package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Portal struct {
		BaseUrl string `json:"base_url"`
	} `json:"portal"`
	PoolCapacity int `json:"pool_capacity"`
}

func TestReadConfigWithLocalOverride(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// base config
		portal: { base_url: "https://ava.example.br" },
		pool_capacity: 1,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		pool_capacity: 2,
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://ava.example.br", cfg.Portal.BaseUrl)
	require.Equal(t, 2, cfg.PoolCapacity)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
