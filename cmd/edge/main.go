// Command edge runs one client-facing node of the cluster: the
// control/voice listeners clients connect to, with the Hub as the
// source of truth for channels, ACLs, and credentials (§4.7, §6).
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mumble.info/grumble/pkg/config"
	"mumble.info/grumble/pkg/edge"
	"mumble.info/grumble/pkg/tlsutil"
)

func main() {
	root := &cobra.Command{Use: "edge"}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "run the edge control/voice server",
	}
	startFlags := config.BindEdgeFlags(startCmd)
	startCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runStart(startFlags)
	}
	root.AddCommand(startCmd)

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "validate an edge config file and exit",
	}
	validateFlags := config.BindEdgeFlags(validateCmd)
	validateCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runValidate(validateFlags)
	}
	root.AddCommand(validateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(flags config.EdgeFlagRefs) (config.EdgeConfig, error) {
	cfg, err := config.LoadEdgeConfig(*flags.ConfigPath)
	if err != nil {
		return config.EdgeConfig{}, err
	}
	cfg = flags.Apply(cfg)
	return cfg, nil
}

func runValidate(flags config.EdgeFlagRefs) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println("config OK")
	return nil
}

func runStart(flags config.EdgeFlagRefs) error {
	log := newLogger()

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Error().Err(err).Msg("edge: invalid configuration")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("edge: invalid configuration")
		os.Exit(2)
	}

	tlsConfig, err := tlsutil.EdgeNodeConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		log.Error().Err(err).Msg("edge: loading TLS certificate")
		os.Exit(1)
	}

	var voiceKey []byte
	if !cfg.PlaintextPeerVoice {
		voiceKey, err = hex.DecodeString(cfg.PeerVoiceKeyHex)
		if err != nil {
			log.Error().Err(err).Msg("edge: invalid peer_voice_key")
			os.Exit(2)
		}
	}

	server, err := edge.NewServer(log, cfg, tlsConfig, voiceKey, cfg.PlaintextPeerVoice)
	if err != nil {
		log.Error().Err(err).Msg("edge: building server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("edge: starting")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("edge: server exited")
		os.Exit(1)
	}
	return nil
}

func newLogger() zerolog.Logger {
	level, err := config.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = config.LogLevelInfo
	}
	zlevel, _ := zerolog.ParseLevel(string(level))
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zlevel).With().Timestamp().Logger()
}
