package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/config"
)

func TestLoadEdgeConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hub_host: hub.internal\nport: 64999\n"), 0o600))

	cfg, err := config.LoadEdgeConfig(path)
	require.NoError(t, err)
	require.Equal(t, "hub.internal", cfg.HubHost)
	require.Equal(t, 64999, cfg.Port)
	require.Equal(t, 11080, cfg.HubPort, "unset fields keep DefaultEdgeConfig's value")
}

func TestLoadEdgeConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.LoadEdgeConfig("")
	require.NoError(t, err)
	require.Equal(t, config.DefaultEdgeConfig(), cfg)
}

func TestEdgeConfigValidateRejectsMissingHubHost(t *testing.T) {
	cfg := config.DefaultEdgeConfig()
	cfg.VoicePort = 64739
	err := cfg.Validate()
	require.Error(t, err)
}

func TestEdgeConfigValidatePassesWithRequiredFields(t *testing.T) {
	cfg := config.DefaultEdgeConfig()
	cfg.HubHost = "hub.internal"
	cfg.VoicePort = 64739
	require.NoError(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := config.ParseLogLevel("debug")
	require.NoError(t, err)
	require.Equal(t, config.LogLevelDebug, lvl)

	lvl, err = config.ParseLogLevel("")
	require.NoError(t, err)
	require.Equal(t, config.LogLevelInfo, lvl)

	_, err = config.ParseLogLevel("verbose")
	require.Error(t, err)
}
