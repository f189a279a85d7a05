package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/config"
	"github.com/memberhub/approval-workflow/internal/container"
	httpapi "github.com/memberhub/approval-workflow/internal/interfaces/http"
	"github.com/memberhub/approval-workflow/pkg/utils"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the configuration")
	withScheduler := flag.Bool("scheduler", true, "run the periodic jobs inside the server process")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting membership approval workflow",
		zap.String("version", version),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port))

	if err := run(cfg, *withScheduler, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, withScheduler bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(withScheduler), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	services := c.Services()
	var metrics httpapi.Metrics
	if m := c.Metrics(); m != nil {
		metrics = m
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Version:         version,
	}, httpapi.Services{
		Review:         services.Review,
		Audit:          services.Audit,
		Statistics:     services.Statistics,
		Submission:     services.Submission,
		Payment:        services.Payment,
		Reconciliation: services.Reconciliation,
	}, c.Tokens(), metrics, utils.NewKVLogger(logger.Named("http")))

	return server.Start(ctx)
}
