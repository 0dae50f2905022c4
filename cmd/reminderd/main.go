// Command reminderd is the reminder delivery daemon.
//
// It polls the reminder store on an interval, delivers due reminders as
// Discord direct messages under a concurrency cap, and serves a small JSON
// admin API for creating and cancelling reminders.
//
// Usage:
//
//	reminderd [--config path]
//
// Environment:
//
//	DISCORD_BOT_TOKEN   Bot token for the Discord REST API
//	REMINDERD_*         Overrides for any config key, e.g.
//	                    REMINDERD_REMINDERS_CHECK_INTERVAL_SECONDS=10
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/cpike5/discordbot-sub015/internal/api"
	"github.com/cpike5/discordbot-sub015/internal/config"
	"github.com/cpike5/discordbot-sub015/internal/discord"
	"github.com/cpike5/discordbot-sub015/internal/reminder"
	"github.com/cpike5/discordbot-sub015/internal/scheduler"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "reminderd",
		Short:        "Discord reminder delivery daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", config.GetDefaultConfigPath(), "path to YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := reminder.NewStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	sender := discord.NewSender(cfg.Discord.Token, cfg.Discord.BaseURL,
		time.Duration(cfg.Discord.TimeoutSeconds)*time.Second)

	svc := reminder.NewService(store, sender, reminder.ServiceConfig{
		MaxDeliveryAttempts: cfg.Reminders.MaxDeliveryAttempts,
		MaxRemindersPerUser: cfg.Reminders.MaxRemindersPerUser,
		MaxAdvanceDays:      cfg.Reminders.MaxAdvanceDays,
		MinAdvanceMinutes:   cfg.Reminders.MinAdvanceMinutes,
	}, logger)

	sched := scheduler.New(store, svc, scheduler.Config{
		InitialDelay:     time.Duration(cfg.Reminders.InitialDelaySeconds) * time.Second,
		CheckInterval:    time.Duration(cfg.Reminders.CheckIntervalSeconds) * time.Second,
		MaxConcurrent:    cfg.Reminders.MaxConcurrentDeliveries,
		ExecutionTimeout: time.Duration(cfg.Reminders.ExecutionTimeoutSeconds) * time.Second,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	if cfg.API.Enabled {
		if !cfg.Logging.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := api.NewServer(svc, logger)
		g.Go(func() error {
			return srv.Run(ctx, cfg.API.ListenAddr)
		})
	}

	logger.Info("reminderd started", zap.String("db", cfg.Database.Path))
	err = g.Wait()
	logger.Info("reminderd stopped")
	return err
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}
