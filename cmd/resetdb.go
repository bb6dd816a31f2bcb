package cmd

import (
	"context"

	"AuraFM/cache"
	"AuraFM/config"
	"AuraFM/logger"
	"AuraFM/repository"

	"github.com/spf13/cobra"
)

var resetDBCmd = &cobra.Command{
	Use:   "resetdb",
	Short: "清空本地目录数据库",
	Long:  `删除本地目录的全部数据和同步状态，下次启动时将执行完整同步`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel)})

		catalog := repository.NewMySQLCatalogStore(cfg)
		if err := catalog.Reset(); err != nil {
			logger.Fatal("Failed to reset catalog", logger.ErrorField(err))
		}
		defer catalog.Close()

		rdb, err := cache.ConnectRedis(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
		}
		defer rdb.Close()

		if err := cache.NewSyncStateStore(rdb).Clear(context.Background()); err != nil {
			logger.Fatal("Failed to clear sync state", logger.ErrorField(err))
		}
		logger.Info("catalog and sync state wiped")
	},
}

func init() {
	rootCmd.AddCommand(resetDBCmd)
}
