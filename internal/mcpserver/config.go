package mcpserver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the MCP server configuration loaded from mcp.yaml.
type Config struct {
	// ReadOnly drops every tool whose RPC is not an HTTP GET.
	ReadOnly  bool                      `yaml:"read_only"`
	Defaults  map[string]MethodDefaults `yaml:"defaults"`
	Groups    map[string]GroupConfig    `yaml:"groups"`
	Overrides map[string]ToolOverride   `yaml:"overrides"`
}

// MethodDefaults defines default MCP annotations for an HTTP method.
type MethodDefaults struct {
	ReadOnly    *bool `yaml:"readonly"`
	Destructive *bool `yaml:"destructive"`
	Idempotent  *bool `yaml:"idempotent"`
}

// GroupConfig describes an MCP tool group.
type GroupConfig struct {
	Description string `yaml:"description"`
	Disabled    bool   `yaml:"disabled"`
}

// ToolOverride allows per-tool customization, keyed by the derived tool
// name.
type ToolOverride struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Disabled    bool   `yaml:"disabled"`
	ReadOnly    *bool  `yaml:"readonly"`
	Destructive *bool  `yaml:"destructive"`
	Idempotent  *bool  `yaml:"idempotent"`
}

// LoadConfig reads and parses the mcp.yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses mcp.yaml configuration from raw bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}
	for name := range cfg.Groups {
		if _, ok := groupRPCs[name]; !ok {
			return nil, fmt.Errorf("parse mcp config: unknown group %q", name)
		}
	}
	return &cfg, nil
}
