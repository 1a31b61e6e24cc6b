package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/playback"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cutline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, playback.DefaultTickInterval, cfg.Playback.TickInterval)
	assert.Equal(t, "stop", cfg.Playback.EndPolicy)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Store.Path)
	assert.Len(t, cfg.PlaybackOptions(), 4)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
log_format: json
playback:
  tick_interval: 50ms
  end_policy: loop
store:
  path: session.db
  high_rate: true
media:
  check_files: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.TickInterval)
	assert.Equal(t, "loop", cfg.Playback.EndPolicy)
	// Unset keys keep their defaults.
	assert.Equal(t, playback.DefaultDistancePerTime, cfg.Playback.DistancePerTime)
	assert.Equal(t, "session.db", cfg.Store.Path)
	assert.True(t, cfg.Store.HighRate)
	assert.True(t, cfg.Media.CheckFiles)
	assert.Equal(t, 1920, cfg.Media.Width)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: debug\nserver:\n  addr: :9000\n")
	t.Setenv("CUTLINE_LOG_LEVEL", "warn")
	t.Setenv("CUTLINE_TICK_INTERVAL", "10ms")
	t.Setenv("CUTLINE_CHECK_FILES", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Millisecond, cfg.Playback.TickInterval)
	assert.True(t, cfg.Media.CheckFiles)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "unknown key", content: "colour: red\n"},
		{name: "bad policy", content: "playback:\n  end_policy: bounce\n"},
		{name: "zero tick", content: "playback:\n  tick_interval: 0s\n"},
		{name: "bad format", content: "log_format: xml\n"},
		{name: "bad env duration", content: "", env: map[string]string{"CUTLINE_TICK_INTERVAL": "soon"}},
		{name: "bad env bool", content: "", env: map[string]string{"CUTLINE_CHECK_FILES": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load("non_existent_file.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
