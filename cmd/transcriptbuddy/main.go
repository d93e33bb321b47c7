package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/transcript-buddy/transcriptbuddy/internal/app"
	"github.com/transcript-buddy/transcriptbuddy/internal/config"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	if errRun := run(os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the server.
func run(args []string) error {
	fs := flag.NewFlagSet("transcriptbuddy", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8318, "server port")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	// A missing .env is fine; environment variables win either way.
	_ = godotenv.Load()

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateOnly {
		return app.Migrate(ctx, appCfg)
	}
	return app.RunServer(ctx, appCfg, *port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
