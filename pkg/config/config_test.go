package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "gemini-3-flash-preview", cfg.DefaultModel)
	require.Equal(t, "GEMINI_API_KEY", cfg.APIKeyEnv)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_model: gemini-3-pro-preview\nlog_level: debug\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gemini-3-pro-preview", cfg.DefaultModel)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "gemini-3-flash-preview", cfg.OneShotModel, "untouched fields keep defaults")
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_model: [oops"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}
