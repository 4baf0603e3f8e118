package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/firestore-admin/internal/config"
)

func TestNewLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		ServiceName:  "fsadmin",
		ProjectID:    "demo",
		DatabaseID:   "(default)",
		EmulatorHost: "localhost:8080",
		LogLevel:     "info",
	}

	logger := newLogger(&buf, cfg)
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fsadmin", line["service"])
	assert.Equal(t, "demo", line["project"])
	assert.Equal(t, "(default)", line["database"])
	assert.Equal(t, "localhost:8080", line["emulator"])
	assert.Equal(t, "hello", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewLogger_OmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{})
	logger.Info().Msg("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "service")
	assert.NotContains(t, line, "project")
	assert.NotContains(t, line, "emulator")
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "warn"})
	logger.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")

	bad := newLogger(&buf, &config.Config{LogLevel: "nonsense"})
	assert.Equal(t, "info", bad.GetLevel().String())
}
