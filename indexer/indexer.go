package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"otoledger/observability"
	"otoledger/rpc"
)

// Indexer mirrors the node's event stream into the sqlite audit log and
// periodically exports settlements to parquet.
type Indexer struct {
	cfg    Config
	store  *Store
	logger *slog.Logger
	runID  string
	now    func() time.Time
}

// New opens the configured store. Close releases it.
func New(cfg Config, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	return &Indexer{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("component", "indexer"), slog.String("run_id", runID)),
		runID:  runID,
		now:    time.Now,
	}, nil
}

func (ix *Indexer) Store() *Store { return ix.store }
func (ix *Indexer) RunID() string { return ix.runID }
func (ix *Indexer) Close() error  { return ix.store.Close() }

// Run consumes the stream and exports until ctx is cancelled. A final export
// is attempted on the way out.
func (ix *Indexer) Run(ctx context.Context) error {
	url, err := ix.cfg.StreamURL()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ix.consume(gctx, url) })
	if ix.cfg.ExportInterval > 0 {
		g.Go(func() error { return ix.exportLoop(gctx) })
	}
	err = g.Wait()

	finalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, exportErr := ix.ExportNow(finalCtx); exportErr != nil {
		ix.logger.Error("final export failed", slog.Any("error", exportErr))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (ix *Indexer) consume(ctx context.Context, url string) error {
	for {
		err := stream(ctx, url, ix.cfg.AuthToken, func(msg rpc.StreamMessage) error {
			id, err := ix.store.Append(ctx, ix.runID, msg, ix.now())
			if err != nil {
				return err
			}
			observability.Events().RecordEvent(msg.Type)
			ix.logger.Debug("event stored",
				slog.Int64("id", id),
				slog.String("type", msg.Type),
				slog.String("tx_hash", msg.TxHash))
			return nil
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ix.logger.Warn("event stream interrupted",
			slog.Any("error", err),
			slog.Duration("retry_in", ix.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ix.cfg.ReconnectDelay):
		}
	}
}

func (ix *Indexer) exportLoop(ctx context.Context) error {
	ticker := time.NewTicker(ix.cfg.ExportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := ix.ExportNow(ctx); err != nil {
				ix.logger.Error("settlement export failed", slog.Any("error", err))
			}
		}
	}
}

// ExportNow writes pending settlements to a parquet file.
func (ix *Indexer) ExportNow(ctx context.Context) (ExportResult, error) {
	res, err := Export(ctx, ix.store, ix.cfg.ExportDir, ix.runID, ix.now())
	if err != nil {
		return res, err
	}
	if res.Rows > 0 {
		ix.logger.Info("settlements exported",
			slog.String("path", res.Path),
			slog.Int("rows", res.Rows),
			slog.Int64("last_event", res.LastEvent))
	}
	return res, nil
}
