package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type settlementRow struct {
	EventID           int64  `parquet:"name=event_id, type=INT64"`
	TxHash            string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Proof             string `parquet:"name=proof, type=BYTE_ARRAY, convertedtype=UTF8"`
	Offer             string `parquet:"name=offer, type=BYTE_ARRAY, convertedtype=UTF8"`
	PurchaseRequest   string `parquet:"name=purchase_request, type=BYTE_ARRAY, convertedtype=UTF8"`
	Provider          string `parquet:"name=provider, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContentHash       string `parquet:"name=content_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price             int64  `parquet:"name=price, type=INT64"`
	BudgetRemaining   int64  `parquet:"name=budget_remaining, type=INT64"`
	SignatureVerified bool   `parquet:"name=signature_verified, type=BOOLEAN"`
	ReceivedAt        string `parquet:"name=received_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportResult describes one parquet file written by Export.
type ExportResult struct {
	Path       string
	Rows       int
	FirstEvent int64
	LastEvent  int64
}

// Export writes the settlements stored since the previous export to a new
// parquet file under dir. It returns a zero result when there is nothing new.
func Export(ctx context.Context, store *Store, dir, runID string, now time.Time) (ExportResult, error) {
	after, err := store.LastExported(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	settlements, err := store.Settlements(ctx, after)
	if err != nil {
		return ExportResult{}, err
	}
	if len(settlements) == 0 {
		return ExportResult{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("indexer: create export dir: %w", err)
	}

	first, last := settlements[0].ID, settlements[len(settlements)-1].ID
	path := filepath.Join(dir, fmt.Sprintf("settlements-%d-%d.parquet", first, last))
	if err := writeParquet(path, settlements); err != nil {
		return ExportResult{}, err
	}
	if err := store.recordExport(ctx, runID, path, first, last, len(settlements), now); err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Path: path, Rows: len(settlements), FirstEvent: first, LastEvent: last}, nil
}

func writeParquet(path string, settlements []Settlement) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(settlementRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, s := range settlements {
		row := &settlementRow{
			EventID:           s.ID,
			TxHash:            s.TxHash,
			Proof:             s.Proof,
			Offer:             s.Offer,
			PurchaseRequest:   s.PurchaseRequest,
			Provider:          s.Provider,
			ContentHash:       s.ContentHash,
			Price:             int64(s.Price),
			BudgetRemaining:   int64(s.BudgetRemaining),
			SignatureVerified: s.SignatureVerified,
			ReceivedAt:        s.ReceivedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return nil
}
