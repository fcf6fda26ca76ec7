package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/observability"
	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/storage"
)

// StoreSink persists every grouped transaction through a result store.
type StoreSink struct {
	store    storage.ResultStore
	database string
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// StoreSinkOptions configures StoreSink.
type StoreSinkOptions struct {
	Store storage.ResultStore
	// Database labels query metrics, e.g. "postgres".
	Database string
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewStoreSink creates a store sink.
func NewStoreSink(opts StoreSinkOptions) *StoreSink {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	database := opts.Database
	if database == "" {
		database = "memory"
	}
	return &StoreSink{
		store:    opts.Store,
		database: database,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Write stores the run's transactions in input order as one batch.
func (s *StoreSink) Write(ctx context.Context, result *pipeline.Result) error {
	txs := result.Transactions()
	if len(txs) == 0 {
		return nil
	}

	batch := make([]*domain.TransactionResult, len(txs))
	for i := range txs {
		batch[i] = &txs[i]
	}

	start := time.Now()
	err := s.store.InsertBulk(ctx, batch)
	s.metrics.RecordDBQuery(s.database, "insert_results", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("store results for run %s: %w", result.RunID, err)
	}

	s.logger.Info("stored run results",
		zap.String("run_id", result.RunID),
		zap.String("database", s.database),
		zap.Int("transactions", len(batch)),
	)
	return nil
}

var _ Sink = (*StoreSink)(nil)
