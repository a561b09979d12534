package config

import "github.com/spf13/cobra"

// BindHubFlags registers `hub start`'s `--config` flag.
func BindHubFlags(cmd *cobra.Command) *string {
	return cmd.Flags().String("config", "", "path to Hub YAML config file")
}

// BindEdgeFlags registers `edge start`'s flags (§6 CLI surface).
func BindEdgeFlags(cmd *cobra.Command) EdgeFlagRefs {
	f := cmd.Flags()
	refs := EdgeFlagRefs{
		ConfigPath: f.String("config", "", "path to Edge YAML config file"),
		Host:       f.String("host", "", "client control listen host"),
		Port:       f.Int("port", 0, "client control listen port"),
		HubHost:    f.String("hub-host", "", "Hub control host"),
		HubPort:    f.Int("hub-port", 0, "Hub control port"),
	}
	return refs
}

// EdgeFlagRefs holds pointers to `edge start`'s bound flag values;
// zero/empty means "use the config file's value" (§6 flags override
// the file, the file overrides DefaultEdgeConfig).
type EdgeFlagRefs struct {
	ConfigPath *string
	Host       *string
	Port       *int
	HubHost    *string
	HubPort    *int
}

// Apply overlays non-zero flag values onto cfg.
func (r EdgeFlagRefs) Apply(cfg EdgeConfig) EdgeConfig {
	if r.Host != nil && *r.Host != "" {
		cfg.Host = *r.Host
	}
	if r.Port != nil && *r.Port != 0 {
		cfg.Port = *r.Port
	}
	if r.HubHost != nil && *r.HubHost != "" {
		cfg.HubHost = *r.HubHost
	}
	if r.HubPort != nil && *r.HubPort != 0 {
		cfg.HubPort = *r.HubPort
	}
	return cfg
}

// BindClientFlags registers `client connect`'s flags (§6).
func BindClientFlags(cmd *cobra.Command) *ClientConfig {
	cfg := &ClientConfig{}
	f := cmd.Flags()
	f.StringVar(&cfg.Host, "host", "", "server host")
	f.IntVar(&cfg.Port, "port", 64738, "server port")
	f.StringVar(&cfg.Username, "username", "", "username")
	f.StringVar(&cfg.Password, "password", "", "password")
	f.StringSliceVar(&cfg.Tokens, "tokens", nil, "access tokens")
	f.BoolVar(&cfg.ForceTCPVoice, "force-tcp-voice", false, "tunnel voice over the control TCP connection instead of UDP")
	return cfg
}
