// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jason-s-yu/hideandseek/internal/cache"
	"github.com/jason-s-yu/hideandseek/internal/catalog"
	"github.com/jason-s-yu/hideandseek/internal/config"
	"github.com/jason-s-yu/hideandseek/internal/database"
	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/jason-s-yu/hideandseek/internal/handlers"
	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/server"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "1.0.0"

func main() {
	cfg := &config.Config{}
	if err := config.NewCommand(cfg, releaseVersion, run).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func loadCatalog(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) ([]models.Task, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		tasks, err := catalog.LoadPostgres(ctx, pool, cfg.TasksTable)
		if err != nil {
			return nil, err
		}
		logger.Infof("loaded %d tasks from postgres table %s", len(tasks), cfg.TasksTable)
		return tasks, nil
	case cfg.TasksFile != "":
		tasks, err := catalog.LoadFile(cfg.TasksFile)
		if err != nil {
			return nil, err
		}
		logger.Infof("loaded %d tasks from %s", len(tasks), cfg.TasksFile)
		return tasks, nil
	}
	return catalog.Default(), nil
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	tasks, err := loadCatalog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("loading task catalog: %w", err)
	}

	opts := []game.Option{game.WithLogger(logger.WithField("component", "game"))}
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		historian := cache.NewHistorian(rdb, cfg.RedisQueue, logger.WithField("component", "historian"))
		defer historian.Close()
		opts = append(opts, game.WithRecorder(historian))
		logger.Infof("recording round history to redis list %s", cfg.RedisQueue)
	}

	st := game.New(settings, tasks, opts...)

	session := handlers.DefaultSessionConfig()
	session.QueueSize = cfg.QueueSize
	session.RateLimit = cfg.Limit()
	session.RateBurst = cfg.RateBurst

	var (
		wg   sync.WaitGroup
		errc = make(chan error, 3)
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	start("game loop", st.Run)
	start("tcp listener", server.NewTCPListener(cfg.ListenAddr, st, session, logger).Start)
	if cfg.HTTPAddr != "" {
		start("http gateway", server.NewGateway(cfg.HTTPAddr, cfg.PublicURL, st, session, logger).Start)
	}

	select {
	case err = <-errc:
		logger.WithError(err).Error("shutting down")
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}
	stop()
	wg.Wait()
	return err
}
