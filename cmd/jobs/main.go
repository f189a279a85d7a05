// Command jobs runs the periodic membership jobs, either on their cron
// schedule or once by name.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/config"
	"github.com/memberhub/approval-workflow/internal/container"
	"github.com/memberhub/approval-workflow/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the configuration")
	runOnce := flag.String("run-once", "", "run a single job by name and exit")
	list := flag.Bool("list", false, "list the registered jobs and exit")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the cron loop only runs when no single job was requested
	scheduled := *runOnce == "" && !*list
	c, err := container.NewContainer(cfg.ToContainerConfig(scheduled), logger)
	if err != nil {
		logger.Fatal("Invalid container configuration", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer c.Close()

	scheduler := c.Scheduler()
	switch {
	case *list:
		fmt.Println(strings.Join(scheduler.JobNames(), "\n"))

	case *runOnce != "":
		if err := scheduler.RunOnce(ctx, *runOnce); err != nil {
			logger.Error("Job failed", zap.String("job", *runOnce), zap.Error(err))
			c.Close()
			os.Exit(1)
		}

	default:
		logger.Info("Scheduler running", zap.Strings("jobs", scheduler.JobNames()))
		<-ctx.Done()
		logger.Info("Shutdown requested")
	}
}
