package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://firestore.googleapis.com"
	DefaultDatabase = "(default)"
)

type Config struct {
	ProjectID   string
	DatabaseID  string
	LocationID  string
	Endpoint    string
	AccessToken string
	// EmulatorHost, when set, points every client at a local emulator
	// ("localhost:8080") and disables OAuth.
	EmulatorHost    string
	RetryConfigPath string
	UserAgent       string

	TLSCert   string
	TLSKey    string
	TLSCACert string

	LogLevel    string
	ServiceName string
	MetricsAddr string

	HTTPListenAddr         string
	EmulatorOperationDelay time.Duration
	EmulatorExportDir      string
	EmulatorBackupTick     time.Duration

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		ProjectID:         getEnv("FIRESTORE_PROJECT", getEnv("GOOGLE_CLOUD_PROJECT", "")),
		DatabaseID:        getEnv("FIRESTORE_DATABASE", DefaultDatabase),
		LocationID:        getEnv("FIRESTORE_LOCATION", "nam5"),
		Endpoint:          getEnv("FIRESTORE_ENDPOINT", DefaultEndpoint),
		AccessToken:       getEnv("FIRESTORE_ACCESS_TOKEN", ""),
		EmulatorHost:      getEnv("FIRESTORE_EMULATOR_HOST", ""),
		RetryConfigPath:   getEnv("FIRESTORE_RETRY_CONFIG", ""),
		UserAgent:         getEnv("FIRESTORE_USER_AGENT", "firestore-admin-go/1.0"),
		TLSCert:           getEnv("FIRESTORE_TLS_CERT", ""),
		TLSKey:            getEnv("FIRESTORE_TLS_KEY", ""),
		TLSCACert:         getEnv("FIRESTORE_TLS_CA_CERT", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServiceName:       getEnv("SERVICE_NAME", ""),
		MetricsAddr:       getEnv("METRICS_ADDR", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		EmulatorExportDir: getEnv("EMULATOR_EXPORT_DIR", os.TempDir()+"/firestore-emulator-exports"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
	}

	var err error
	if cfg.EmulatorOperationDelay, err = getDuration("EMULATOR_OPERATION_DELAY", 0); err != nil {
		return nil, err
	}
	if cfg.EmulatorBackupTick, err = getDuration("EMULATOR_BACKUP_TICK", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BaseURL returns the REST root every client talks to. The emulator host
// takes precedence over the configured endpoint.
func (c *Config) BaseURL() string {
	if c.EmulatorHost != "" {
		host := c.EmulatorHost
		if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			host = "http://" + host
		}
		return strings.TrimRight(host, "/")
	}
	return strings.TrimRight(c.Endpoint, "/")
}

// UsingEmulator reports whether requests go to a local emulator.
func (c *Config) UsingEmulator() bool {
	return c.EmulatorHost != ""
}

// Validate checks that the fields required by the given component are set.
func (c *Config) Validate(component string) error {
	var missing []string

	switch component {
	case "fsadmin", "fsbatch", "mcp-server":
		if c.ProjectID == "" {
			missing = append(missing, "FIRESTORE_PROJECT")
		}
		if c.DatabaseID == "" {
			missing = append(missing, "FIRESTORE_DATABASE")
		}
		if c.BaseURL() == "" {
			missing = append(missing, "FIRESTORE_ENDPOINT")
		}
	case "firestore-emulator":
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config for %s: %s", component, strings.Join(missing, ", "))
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("FIRESTORE_TLS_CERT and FIRESTORE_TLS_KEY must both be set")
	}
	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must both be set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
