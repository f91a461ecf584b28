package config_manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// CurrentConfigVersion is the latest version of the wifi.json format.
const CurrentConfigVersion = "v0.0.2"

// DefaultConfigPath is used unless TOLLGATE_WIFI_CONFIG_PATH is set.
const DefaultConfigPath = "/etc/tollgate/wifi.json"

// ConfigPathEnv overrides DefaultConfigPath.
const ConfigPathEnv = "TOLLGATE_WIFI_CONFIG_PATH"

// ConfigPath returns the config file location, honouring the environment override.
func ConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	return DefaultConfigPath
}

// ConfigManager manages the configuration file
type ConfigManager struct {
	FilePath string
	mu       sync.Mutex
}

// NewConfigManager creates a new ConfigManager instance
func NewConfigManager(filePath string) (*ConfigManager, error) {
	if filePath == "" {
		return nil, errors.New("config file path is empty")
	}
	return &ConfigManager{FilePath: filePath}, nil
}

// LoadConfig reads the configuration. Fields missing from the file keep their defaults.
// A nil config is returned when the file does not exist or is empty.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.load()
}

func (cm *ConfigManager) load() (*Config, error) {
	data, err := os.ReadFile(cm.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	config := NewDefaultConfig()
	config.ConfigVersion = ""
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", cm.FilePath, err)
	}
	return config, nil
}

// SaveConfig writes config with pretty formatting.
func (cm *ConfigManager) SaveConfig(config *Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return writeJSON(cm.FilePath, config)
}

// EnsureDefaultConfig ensures a usable configuration exists, creating or migrating it if necessary.
func (cm *ConfigManager) EnsureDefaultConfig() (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(cm.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config, err := cm.load()
	if err != nil {
		logger.WithError(err).WithField("file", cm.FilePath).Warn("Config file unreadable, replacing with defaults")
		if backupErr := backupFile(cm.FilePath); backupErr != nil {
			return nil, backupErr
		}
		config = nil
	}

	if config == nil {
		config = NewDefaultConfig()
		logger.WithField("file", cm.FilePath).Info("Writing default config")
		return config, writeJSON(cm.FilePath, config)
	}

	changed, err := migrateConfig(config)
	if err != nil {
		logger.WithError(err).WithField("config_version", config.ConfigVersion).Warn("Invalid config version, replacing with defaults")
		if backupErr := backupFile(cm.FilePath); backupErr != nil {
			return nil, backupErr
		}
		config = NewDefaultConfig()
		changed = true
	}
	if changed {
		if err := writeJSON(cm.FilePath, config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// migrateConfig brings an older config up to CurrentConfigVersion. Configs from a
// newer release are used as they are.
func migrateConfig(config *Config) (bool, error) {
	if config.ConfigVersion == "" {
		config.ConfigVersion = "v0.0.1"
	}
	fileVersion, err := version.NewVersion(config.ConfigVersion)
	if err != nil {
		return false, err
	}
	current := version.Must(version.NewVersion(CurrentConfigVersion))

	switch {
	case fileVersion.LessThan(current):
		logger.WithFields(logrus.Fields{
			"from": config.ConfigVersion,
			"to":   CurrentConfigVersion,
		}).Info("Config file version mismatch, migrating")
		config.fillDefaults(NewDefaultConfig())
		config.ConfigVersion = CurrentConfigVersion
		return true, nil
	case fileVersion.GreaterThan(current):
		logger.WithField("config_version", config.ConfigVersion).Warn("Config file is newer than this build")
	}
	config.fillDefaults(NewDefaultConfig())
	return false, nil
}

// ProfilePath is where the saved AP profile lives, next to the config file.
func (cm *ConfigManager) ProfilePath() string {
	return filepath.Join(filepath.Dir(cm.FilePath), "profile.json")
}

// writeJSON replaces path atomically.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// backupFile moves an unusable file aside so it can be inspected later.
func backupFile(path string) error {
	backup := fmt.Sprintf("%s.%d.bak", path, time.Now().Unix())
	if err := os.Rename(path, backup); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).WithField("file", path).Error("CRITICAL: Failed to back up invalid file")
		return fmt.Errorf("backup %s: %w", path, err)
	}
	logger.WithField("backup", backup).Info("Backed up invalid file")
	return nil
}
