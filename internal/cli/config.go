package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edvin/firestore-admin/internal/config"
)

// ProfileConfig is the YAML body of a connection profile.
type ProfileConfig struct {
	Project  string `yaml:"project" json:"project"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	Location string `yaml:"location,omitempty" json:"location,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// EmulatorHost ("localhost:8080") points the profile at an emulator
	// and disables OAuth.
	EmulatorHost string `yaml:"emulator_host,omitempty" json:"emulator_host,omitempty"`
	// TokenFile holds a bearer access token, re-read on every use.
	TokenFile string `yaml:"token_file,omitempty" json:"token_file,omitempty"`
	// RetryConfig is a retry override file, see retry.Table.ApplyYAML.
	RetryConfig string `yaml:"retry_config,omitempty" json:"retry_config,omitempty"`
}

// ParseConfig reads and validates a profile file.
func ParseConfig(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return ParseConfigBytes(data)
}

// ParseConfigBytes parses a profile from YAML. Unknown keys are errors.
func ParseConfigBytes(data []byte) (*ProfileConfig, error) {
	var pc ProfileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := pc.validate(); err != nil {
		return nil, err
	}
	return &pc, nil
}

func (pc *ProfileConfig) validate() error {
	if pc.Project == "" {
		return errors.New("missing project")
	}
	if pc.EmulatorHost != "" && pc.TokenFile != "" {
		return errors.New("emulator_host and token_file are mutually exclusive")
	}
	if pc.Endpoint != "" && !strings.HasPrefix(pc.Endpoint, "https://") && !strings.HasPrefix(pc.Endpoint, "http://") {
		return fmt.Errorf("endpoint %q must be an http(s) URL", pc.Endpoint)
	}
	return nil
}

// Apply overlays the profile on cfg. Empty profile fields leave cfg as
// it is.
func (pc *ProfileConfig) Apply(cfg *config.Config) error {
	cfg.ProjectID = pc.Project
	setIf(&cfg.DatabaseID, pc.Database)
	setIf(&cfg.LocationID, pc.Location)
	setIf(&cfg.Endpoint, pc.Endpoint)
	setIf(&cfg.EmulatorHost, pc.EmulatorHost)
	setIf(&cfg.RetryConfigPath, pc.RetryConfig)
	if pc.TokenFile != "" {
		data, err := os.ReadFile(pc.TokenFile)
		if err != nil {
			return fmt.Errorf("read token file: %w", err)
		}
		cfg.AccessToken = strings.TrimSpace(string(data))
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
