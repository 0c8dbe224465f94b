package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"otoledger/indexer"
	"otoledger/observability/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("oto-indexer: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("oto-indexer", flag.ContinueOnError)
	cfgPath := fs.String("config", "indexer.yaml", "path to the indexer configuration")
	exportOnly := fs.Bool("export", false, "export pending settlements and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := indexer.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if v := strings.TrimSpace(os.Getenv("OTO_ENV")); v != "" {
		env = v
	}
	logger, closeLogs := logging.Setup("oto-indexer", env, logging.Options{Level: cfg.LogLevel})
	defer closeLogs.Close()
	if cfg.AuthToken != "" {
		logger.Info("stream authentication configured", logging.MaskField("auth_token", cfg.AuthToken))
	}

	ix, err := indexer.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer ix.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *exportOnly {
		res, err := ix.ExportNow(ctx)
		if err != nil {
			return err
		}
		logger.Info("export finished", slog.Int("rows", res.Rows), slog.String("path", res.Path))
		return nil
	}

	logger.Info("oto-indexer started", slog.String("endpoint", cfg.Endpoint), slog.String("database", cfg.Database))
	return ix.Run(ctx)
}
