package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"otoledger/config"
	"otoledger/core"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/observability/logging"
	telemetry "otoledger/observability/otel"
	"otoledger/rpc"
	"otoledger/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("otod: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("otod", flag.ContinueOnError)
	configFile := fs.String("config", "./config.toml", "Path to the configuration file")
	bootstrap := fs.Bool("bootstrap", false, "Initialise the ledger config with the operator key when it does not exist yet")
	collection := fs.String("collection", "", "Collection address recorded by -bootstrap")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogs := logging.Setup("otod", cfg.Environment, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	defer closeLogs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.OTel("otod", cfg.Environment))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	node, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	if *bootstrap {
		if err := bootstrapConfig(ctx, cfg, node, *collection, logger); err != nil {
			return err
		}
	}

	server, err := rpc.NewServer(node, serverConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("init rpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.ListenAddress)
	})
	g.Go(func() error {
		return watchReload(gctx, *configFile, node, logger)
	})

	logger.Info("otod started",
		slog.String("listen", cfg.ListenAddress),
		slog.String("backend", cfg.Backend),
		slog.Bool("verify_buyer_signatures", cfg.VerifyBuyerSignatures))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("otod stopped")
	return nil
}

// openNode opens the configured backend and wires the runtime switches.
func openNode(cfg *config.Config, logger *slog.Logger) (*core.Node, error) {
	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Backend, err)
	}
	return core.NewNode(db,
		core.WithLogger(logger),
		core.WithPauses(cfg.Pauses.Runtime()),
		core.WithQuota(cfg.Quota.Runtime()),
		core.WithBuyerSignatureVerification(cfg.VerifyBuyerSignatures),
	), nil
}

func serverConfig(cfg *config.Config) rpc.ServerConfig {
	return rpc.ServerConfig{
		JWTSecret:         cfg.RPC.JWTSecret,
		JWTIssuer:         cfg.RPC.JWTIssuer,
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateBurst:         cfg.RPC.RateBurst,
		TrustedProxies:    cfg.RPC.TrustedProxies,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		ReadHeaderTimeout: cfg.RPC.ReadHeaderTimeoutDuration(),
		ReadTimeout:       cfg.RPC.ReadTimeoutDuration(),
		WriteTimeout:      cfg.RPC.WriteTimeoutDuration(),
		IdleTimeout:       cfg.RPC.IdleTimeoutDuration(),
	}
}

// bootstrapConfig signs initialize_config with the operator key unless the
// ledger already has a config.
func bootstrapConfig(ctx context.Context, cfg *config.Config, node *core.Node, collection string, logger *slog.Logger) error {
	if _, err := node.Config(); err == nil {
		logger.Info("ledger config already initialised")
		return nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("read ledger config: %w", err)
	}

	var args types.InitializeConfigArgs
	if collection != "" {
		addr, err := crypto.ParseAddress(collection)
		if err != nil {
			return fmt.Errorf("invalid -collection: %w", err)
		}
		args.Collection = addr
	}
	key, err := cfg.OperatorKey()
	if err != nil {
		return fmt.Errorf("load operator key: %w", err)
	}
	admin := key.PubKey().Address()
	nonce, err := node.Nonce(admin)
	if err != nil {
		return err
	}
	tx, err := types.NewTransaction(types.TxTypeInitializeConfig, nonce, &args)
	if err != nil {
		return err
	}
	if err := tx.Sign(key); err != nil {
		return err
	}
	if _, err := node.SubmitTransaction(ctx, tx); err != nil {
		return fmt.Errorf("bootstrap ledger config: %w", err)
	}
	logger.Info("ledger config initialised", slog.String("admin", admin.String()))
	return nil
}

// watchReload re-reads the pause switches on SIGHUP.
func watchReload(ctx context.Context, path string, node *core.Node, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			cfg, err := config.Load(path)
			if err != nil {
				logger.Error("config reload failed", slog.Any("error", err))
				continue
			}
			applyPauses(node, cfg.Pauses.Runtime())
			logger.Info("pause switches reloaded",
				slog.Bool(common.ModulePoints, node.IsPaused(common.ModulePoints)),
				slog.Bool(common.ModuleMarket, node.IsPaused(common.ModuleMarket)))
		}
	}
}

func applyPauses(node *core.Node, pauses common.Pauses) {
	for _, module := range []string{common.ModulePoints, common.ModuleMarket} {
		node.SetPaused(module, pauses.IsPaused(module))
	}
}
