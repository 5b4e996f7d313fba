// cmd/historian/main.go drains the round history queue into PostgreSQL.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/hideandseek/internal/cache"
	"github.com/jason-s-yu/hideandseek/internal/config"
	"github.com/jason-s-yu/hideandseek/internal/database"
	"github.com/jason-s-yu/hideandseek/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "1.0.0"

func main() {
	cfg := &config.HistorianConfig{}
	if err := config.NewHistorianCommand(cfg, releaseVersion, run).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.HistorianConfig) error {
	logger := logrus.New()
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := database.NewRoundStore(pool)
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	return historian.New(rdb, store, cfg.Service(), logger).Run(ctx)
}
