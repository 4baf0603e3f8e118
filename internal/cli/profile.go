// Package cli stores named connection profiles for the command-line
// tools.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edvin/firestore-admin/internal/config"
)

const (
	configDirName = "firestore-admin"
	profilesDir   = "profiles"
	stateFile     = "state.json"
	profileExt    = ".yaml"
)

// Profile is a saved connection profile.
type Profile struct {
	Name string `json:"name"`
	ProfileConfig
}

// State holds the active profile selection.
type State struct {
	ActiveProfile string `json:"active_profile"`
}

// configDir returns the base config directory (~/.config/firestore-admin/).
func configDir() (string, error) {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, configDirName), nil
}

func ensureConfigDir() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, profilesDir), 0700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

func profilePath(dir, name string) string {
	return filepath.Join(dir, profilesDir, name+profileExt)
}

// Import validates a profile file and stores it under name. If name is
// empty it is derived from the filename.
func Import(path, name string) (*Profile, error) {
	pc, err := ParseConfig(path)
	if err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return Save(name, pc)
}

// Save stores pc as the profile name, replacing any profile of that
// name.
func Save(name string, pc *ProfileConfig) (*Profile, error) {
	if err := pc.validate(); err != nil {
		return nil, err
	}
	name = sanitizeName(name)
	if name == "" {
		return nil, errors.New("profile name is empty")
	}
	dir, err := ensureConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(pc)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(profilePath(dir, name), data, 0600); err != nil {
		return nil, fmt.Errorf("write profile: %w", err)
	}
	return &Profile{Name: name, ProfileConfig: *pc}, nil
}

// ListProfiles returns all saved profiles sorted by name. Files that do
// not parse are skipped.
func ListProfiles() ([]Profile, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, profilesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles directory: %w", err)
	}

	var profiles []Profile
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), profileExt)
		if !ok {
			continue
		}
		pc, err := ParseConfig(profilePath(dir, name))
		if err != nil {
			continue
		}
		profiles = append(profiles, Profile{Name: name, ProfileConfig: *pc})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// LoadProfile loads a profile by name.
func LoadProfile(name string) (*Profile, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	pc, err := ParseConfig(profilePath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	return &Profile{Name: name, ProfileConfig: *pc}, nil
}

// DeleteProfile removes a saved profile and clears it if it was active.
func DeleteProfile(name string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	if err := os.Remove(profilePath(dir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("profile %q not found", name)
		}
		return fmt.Errorf("remove profile: %w", err)
	}

	state, _ := loadState()
	if state != nil && state.ActiveProfile == name {
		state.ActiveProfile = ""
		return saveState(state)
	}
	return nil
}

// SetActive sets the active profile.
func SetActive(name string) error {
	if _, err := LoadProfile(name); err != nil {
		return err
	}
	return saveState(&State{ActiveProfile: name})
}

// GetActive returns the active profile name, empty if none is set.
func GetActive() (string, error) {
	state, err := loadState()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return state.ActiveProfile, nil
}

// Resolve overlays a profile on cfg: the named one, or the active one
// when name is empty. With neither, cfg is left alone and the returned
// name is empty.
func Resolve(cfg *config.Config, name string) (string, error) {
	if name == "" {
		active, err := GetActive()
		if err != nil {
			return "", err
		}
		name = active
	}
	if name == "" {
		return "", nil
	}
	p, err := LoadProfile(name)
	if err != nil {
		return "", err
	}
	if err := p.Apply(cfg); err != nil {
		return "", err
	}
	return name, nil
}

func loadState() (*State, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &state, nil
}

func saveState(state *State) error {
	dir, err := ensureConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFile), data, 0600)
}

func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
	return strings.Trim(name, "-")
}
