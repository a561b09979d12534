// Package config loads the Hub/Edge/Client configuration from an
// optional YAML file plus CLI flag/env var overrides (§6 "CLI
// surface", "Environment variables").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel is one of the four levels the LOG_LEVEL env var selects
// from (§6).
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// HubConfig configures the `hub start` command.
type HubConfig struct {
	ControlListen    string        `yaml:"control_listen"`    // default ":11080"
	TLSCertFile      string        `yaml:"tls_cert_file"`
	TLSKeyFile       string        `yaml:"tls_key_file"`
	DatabasePath     string        `yaml:"database_path"`
	BlobStoreRoot    string        `yaml:"blob_store_root"`
	BackupDir        string        `yaml:"backup_dir"`
	BackupInterval   time.Duration `yaml:"backup_interval"`
	HeartbeatDeadline time.Duration `yaml:"heartbeat_deadline"` // default 90s
	RPCTimeout       time.Duration `yaml:"rpc_timeout"`         // default 30s

	AuthEndpoint       string        `yaml:"auth_endpoint"`
	AuthCacheTTL       time.Duration `yaml:"auth_cache_ttl"`
	AuthTransportTimeout time.Duration `yaml:"auth_transport_timeout"` // default 5s
	RedisAddr          string        `yaml:"redis_addr"`

	ListenersPerChannel int `yaml:"listeners_per_channel"` // 0 = unlimited
	ListenersPerUser    int `yaml:"listeners_per_user"`    // 0 = unlimited

	AutoBanThreshold int           `yaml:"auto_ban_threshold"`
	AutoBanWindow    time.Duration `yaml:"auto_ban_window"`
	AutoBanDuration  time.Duration `yaml:"auto_ban_duration"`
}

// EdgeConfig configures the `edge start` / `edge validate-config`
// commands.
type EdgeConfig struct {
	ServerID  string `yaml:"server_id"`
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`      // client control listen host
	Port      int    `yaml:"port"`      // default 64738
	VoicePort int    `yaml:"voice_port"`
	Region    string `yaml:"region"`
	Capacity  int    `yaml:"capacity"`

	HubHost string `yaml:"hub_host"`
	HubPort int    `yaml:"hub_port"` // default 11080

	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	ClientTimeout    time.Duration `yaml:"client_timeout"`    // default 30s
	HeartbeatPeriod  time.Duration `yaml:"heartbeat_period"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"` // default 2s
	ReconnectWindow   time.Duration `yaml:"reconnect_window"`   // default 10s
	RejoinDelay       time.Duration `yaml:"rejoin_delay"`       // default 5s
	PeerReconnectWindow time.Duration `yaml:"peer_reconnect_window"` // default 3s

	MaxBandwidthBps int `yaml:"max_bandwidth_bps"`

	// PeerVoiceKeyHex seeds the Edge<->Edge voice envelope (hex-encoded
	// AES-128 key, 32 hex chars). Every Edge in a cluster must share
	// the same key. Ignored when PlaintextPeerVoice is set.
	PeerVoiceKeyHex    string `yaml:"peer_voice_key"`
	PlaintextPeerVoice bool   `yaml:"plaintext_peer_voice"`
}

// ClientConfig configures the `client connect` command.
type ClientConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Tokens        []string
	ForceTCPVoice bool
}

// DefaultHubConfig returns HubConfig populated with this spec's documented
// defaults (§4.14, §5).
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ControlListen:        ":11080",
		HeartbeatDeadline:    90 * time.Second,
		RPCTimeout:           30 * time.Second,
		AuthTransportTimeout: 5 * time.Second,
		AutoBanWindow:        time.Minute,
		AutoBanDuration:      10 * time.Minute,
	}
}

// DefaultEdgeConfig returns EdgeConfig populated with this spec's
// documented defaults (§5).
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		Port:                64738,
		ClientTimeout:        30 * time.Second,
		ReconnectInterval:    2 * time.Second,
		ReconnectWindow:      10 * time.Second,
		RejoinDelay:          5 * time.Second,
		PeerReconnectWindow:  3 * time.Second,
		HubPort:              11080,
	}
}

// LoadHubConfig reads path (if non-empty) over DefaultHubConfig.
func LoadHubConfig(path string) (HubConfig, error) {
	cfg := DefaultHubConfig()
	if path == "" {
		return cfg, nil
	}
	if err := readYAML(path, &cfg); err != nil {
		return HubConfig{}, err
	}
	return cfg, nil
}

// LoadEdgeConfig reads path (if non-empty) over DefaultEdgeConfig.
func LoadEdgeConfig(path string) (EdgeConfig, error) {
	cfg := DefaultEdgeConfig()
	if path == "" {
		return cfg, nil
	}
	if err := readYAML(path, &cfg); err != nil {
		return EdgeConfig{}, err
	}
	return cfg, nil
}

func readYAML(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks an EdgeConfig for the invariants `edge
// validate-config` reports on (§6 exit code 2 "config invalid").
func (c EdgeConfig) Validate() error {
	if c.HubHost == "" {
		return fmt.Errorf("config: hub_host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.VoicePort <= 0 || c.VoicePort > 65535 {
		return fmt.Errorf("config: voice_port %d out of range", c.VoicePort)
	}
	if c.HubPort <= 0 || c.HubPort > 65535 {
		return fmt.Errorf("config: hub_port %d out of range", c.HubPort)
	}
	return nil
}

// ParseLogLevel validates the LOG_LEVEL env var (§6).
func ParseLogLevel(s string) (LogLevel, error) {
	switch LogLevel(s) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(s), nil
	case "":
		return LogLevelInfo, nil
	default:
		return "", fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
}
