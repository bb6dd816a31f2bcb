package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AuraFM/cache"
	"AuraFM/config"
	"AuraFM/core/auth"
	"AuraFM/core/directory"
	"AuraFM/core/graph"
	"AuraFM/core/player"
	"AuraFM/core/sync"
	"AuraFM/logger"
	"AuraFM/repository"
	"AuraFM/server"
	"AuraFM/storage"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动内容引擎",
	Long:  `启动AuraFM内容引擎：目录同步、播放会话以及供UI层使用的HTTP接口`,
	Run: func(cmd *cobra.Command, args []string) {
		runEngine()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine() {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	cfgStore := config.NewStore(cfg)
	if watcher, err := cfgStore.Watch(".env"); err == nil {
		defer watcher.Close()
	} else {
		logger.Debug("config watch unavailable", logger.ErrorField(err))
	}

	// Redis holds the watermark and load markers.
	rdb, err := cache.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer rdb.Close()
	stateStore := cache.NewSyncStateStore(rdb)

	// Media vault is optional.
	vault, err := storage.NewVault(cfg)
	if err != nil {
		logger.Fatal("Failed to connect media vault", logger.ErrorField(err))
	}

	catalog := repository.NewMySQLCatalogStore(cfg)
	defer catalog.Close()

	transport := graph.NewWebSocketTransport(cfg.GraphEndpoint)
	session := sync.NewSession(transport, catalog, stateStore, sync.Options{
		PageSize:   cfg.SyncPageSize,
		AppVersion: cfg.AppVersion,
	})
	defer session.Shutdown()

	dir := directory.New(catalog, session, stateStore, directory.Options{
		FeaturedSettingIdentifier: cfg.FeaturedSettingIdentifier,
		LiveChannelIdentifier:     cfg.LiveChannelIdentifier,
		LatestBroadcastCount:      cfg.LatestBroadcastCount,
		ProgramPriority:           cfg.ProgramPriority,
		AppVersion:                cfg.AppVersion,
		MinCatalogVersion:         cfg.MinCatalogVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dir.Start(ctx); err != nil {
		logger.Fatal("Failed to start content directory", logger.ErrorField(err))
	}
	defer dir.Stop()

	// Member session refreshes in the background when a refresh token exists.
	if cfg.RefreshToken != "" {
		member := auth.NewMemberSession(cfg.TokenEndpoint, cfg.RefreshToken)
		go member.Run(ctx)
	}

	mediaTransport := player.NewHeadlessTransport(200 * time.Millisecond)
	defer mediaTransport.Close()
	playback := player.NewSession(mediaTransport, func() player.ResolverConfig {
		current := cfgStore.Current()
		return player.ResolverConfig{
			LiveStreamBase:    current.LiveStreamBase,
			StreamOverrideURL: current.StreamOverrideURL,
			CDNBase:           current.CDNBase,
		}
	}, vaultOrNil(vault))
	defer playback.Close()

	// Shut down on SIGINT/SIGTERM.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	srv := server.New(cfg.HTTPAddr, dir, playback)
	if err := server.Run(ctx, srv); err != nil {
		logger.Error("http facade stopped", logger.ErrorField(err))
	}
}

// vaultOrNil avoids handing the player a typed-nil interface value.
func vaultOrNil(v *storage.Vault) player.VaultSigner {
	if v == nil {
		return nil
	}
	return v
}
