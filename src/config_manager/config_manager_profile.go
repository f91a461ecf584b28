package config_manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
)

// CurrentProfileVersion is the latest version of the profile.json format.
const CurrentProfileVersion = "v0.0.1"

// ErrNoProfile is returned by Read when no profile has been saved.
var ErrNoProfile = errors.New("no saved profile")

// profileFile is the on-disk layout of profile.json.
type profileFile struct {
	ConfigVersion string                 `json:"config_version"`
	Profile       *wifi_manager.APConfig `json:"profile,omitempty"`
}

// ProfileStore keeps the saved AP profile in a JSON file.
type ProfileStore struct {
	path string
	mu   sync.Mutex
}

var _ wifi_manager.ProfileStore = (*ProfileStore)(nil)

func NewProfileStore(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// Init creates an empty profile file when none exists. An unreadable file is
// backed up and replaced.
func (s *ProfileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	pf, err := s.load()
	switch {
	case err == nil && pf != nil:
		if pf.ConfigVersion != CurrentProfileVersion {
			pf.ConfigVersion = CurrentProfileVersion
			return writeJSON(s.path, pf)
		}
		return nil
	case err != nil:
		logger.WithError(err).WithField("file", s.path).Warn("Profile file unreadable, starting without a profile")
		if backupErr := backupFile(s.path); backupErr != nil {
			return backupErr
		}
	}
	return writeJSON(s.path, &profileFile{ConfigVersion: CurrentProfileVersion})
}

// load reads the versioned format, falling back to a bare APConfig written by older releases.
func (s *ProfileStore) load() (*profileFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading profile file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var pf profileFile
	if err := json.Unmarshal(data, &pf); err == nil && pf.ConfigVersion != "" {
		return &pf, nil
	}

	var legacy wifi_manager.APConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("error parsing profile file %s: %w", s.path, err)
	}
	if legacy.SSID == "" {
		return &profileFile{}, nil
	}
	logger.WithField("file", s.path).Info("Unversioned profile file found, migrating to versioned format")
	return &profileFile{Profile: &legacy}, nil
}

func (s *ProfileStore) Read() (wifi_manager.APConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, err := s.load()
	if err != nil {
		return wifi_manager.APConfig{}, err
	}
	if pf == nil || pf.Profile == nil {
		return wifi_manager.APConfig{}, ErrNoProfile
	}
	return *pf.Profile, nil
}

func (s *ProfileStore) Write(config wifi_manager.APConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.path, &profileFile{ConfigVersion: CurrentProfileVersion, Profile: &config}); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	logger.WithField("ssid", config.SSID).Info("Saved AP profile")
	return nil
}

// Reset forgets the saved profile.
func (s *ProfileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.path, &profileFile{ConfigVersion: CurrentProfileVersion}); err != nil {
		return fmt.Errorf("failed to reset profile: %w", err)
	}
	logger.Info("Removed AP profile")
	return nil
}
