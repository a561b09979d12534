// Command hub runs the cluster's single authoritative node: the
// channel/ACL/ban/user store, the Edge registry, and the external
// credential client (§3, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mumble.info/grumble/pkg/auth"
	"mumble.info/grumble/pkg/blobstore"
	"mumble.info/grumble/pkg/config"
	"mumble.info/grumble/pkg/database"
	"mumble.info/grumble/pkg/hub"
	"mumble.info/grumble/pkg/tlsutil"
)

func main() {
	root := &cobra.Command{Use: "hub"}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "run the hub control-plane server",
	}
	configPath := config.BindHubFlags(startCmd)
	startCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runStart(*configPath)
	}
	root.AddCommand(startCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStart(configPath string) error {
	log := newLogger()

	cfg, err := config.LoadHubConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("hub: invalid configuration")
		os.Exit(2)
	}

	tlsConfig, err := tlsutil.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		log.Error().Err(err).Msg("hub: loading TLS certificate")
		os.Exit(1)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Error().Err(err).Msg("hub: opening database")
		os.Exit(1)
	}

	blobs, err := blobstore.Open(cfg.BlobStoreRoot)
	if err != nil {
		log.Error().Err(err).Msg("hub: opening blob store")
		os.Exit(1)
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			log.Warn().Err(err).Msg("hub: releasing blob store lock")
		}
	}()

	coord := auth.New(auth.Config{
		Endpoint:           cfg.AuthEndpoint,
		TransportTimeout:   cfg.AuthTransportTimeout,
		CacheTTL:           cfg.AuthCacheTTL,
		AllowCacheFallback: true,
	}, authCache(cfg))

	server, err := hub.NewServer(log, cfg, tlsConfig, db, coord, blobs)
	if err != nil {
		log.Error().Err(err).Msg("hub: building server")
		os.Exit(1)
	}

	backup, err := database.NewBackupScheduler(db, cfg.BackupDir, cfg.BackupInterval)
	if err != nil {
		log.Error().Err(err).Msg("hub: building backup scheduler")
		os.Exit(1)
	}
	backup.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*cfg.RPCTimeout)
		defer stopCancel()
		backup.Stop(stopCtx)
	}()

	log.Info().Str("listen", cfg.ControlListen).Msg("hub: starting")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("hub: server exited")
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

func authCache(cfg config.HubConfig) auth.Cache {
	if cfg.RedisAddr == "" {
		return auth.NewMemCache()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return auth.NewRedisCache(client, "hub:auth:")
}
