package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings of the chat core. The API key itself
// never lives in the file; only the name of the environment variable that
// carries it does.
type Config struct {
	// DefaultModel answers streamed chat turns.
	DefaultModel string `yaml:"default_model"`
	// OneShotModel runs title generation and memory extraction.
	OneShotModel string `yaml:"one_shot_model"`
	// APIKeyEnv names the environment variable holding the Gemini API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// StorageDir is where thread and profile snapshots are written.
	StorageDir string `yaml:"storage_dir"`
	LogLevel   string `yaml:"log_level"`
}

func Default() Config {
	storageDir := ".parley"
	if home, err := os.UserHomeDir(); err == nil {
		storageDir = filepath.Join(home, ".parley")
	}
	return Config{
		DefaultModel: "gemini-3-flash-preview",
		OneShotModel: "gemini-3-flash-preview",
		APIKeyEnv:    "GEMINI_API_KEY",
		StorageDir:   storageDir,
		LogLevel:     "info",
	}
}

// Load reads the YAML config at path, layered over defaults. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// APIKey resolves the Gemini API key from the configured environment
// variable.
func (c Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
