package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/solana"
)

// ErrWatchLimit is returned when a watch source is created without a limit.
var ErrWatchLimit = errors.New("watch source requires a positive limit")

// WatchSource collects signatures from a live logs subscription until
// the limit is reached, the subscription ends or the context is done.
type WatchSource struct {
	ws            solana.WSClient
	filter        solana.LogsFilter
	limit         int
	includeFailed bool
	logger        *zap.Logger
}

// WatchOptions configures WatchSource.
type WatchOptions struct {
	WS solana.WSClient
	// Mentions restricts the subscription to transactions mentioning these addresses.
	Mentions   []string
	Commitment string
	Limit      int
	// IncludeFailed keeps transactions that failed on chain.
	IncludeFailed bool
	Logger        *zap.Logger
}

// NewWatchSource creates a watch source.
func NewWatchSource(opts WatchOptions) (*WatchSource, error) {
	if opts.Limit <= 0 {
		return nil, ErrWatchLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchSource{
		ws: opts.WS,
		filter: solana.LogsFilter{
			Mentions:   opts.Mentions,
			Commitment: opts.Commitment,
		},
		limit:         opts.Limit,
		includeFailed: opts.IncludeFailed,
		logger:        logger,
	}, nil
}

// Load subscribes and returns the collected records in arrival order.
// A cancelled context ends collection without error.
func (s *WatchSource) Load(ctx context.Context) ([]domain.InputRecord, error) {
	ch, err := s.ws.SubscribeLogs(ctx, s.filter)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	s.logger.Info("watching transactions",
		zap.Strings("mentions", s.filter.Mentions),
		zap.Int("limit", s.limit),
	)

	seen := make(map[string]struct{}, s.limit)
	records := make([]domain.InputRecord, 0, s.limit)

	for len(records) < s.limit {
		select {
		case <-ctx.Done():
			s.logger.Info("watch interrupted", zap.Int("collected", len(records)))
			return records, nil
		case notif, ok := <-ch:
			if !ok {
				s.logger.Warn("subscription closed", zap.Int("collected", len(records)))
				return records, nil
			}
			if notif.Err != nil && !s.includeFailed {
				continue
			}
			if _, dup := seen[notif.Signature]; dup {
				continue
			}
			seen[notif.Signature] = struct{}{}

			records = append(records, domain.InputRecord{
				ID:              strconv.Itoa(len(records) + 1),
				TransactionHash: notif.Signature,
			})
			s.logger.Debug("observed transaction",
				zap.String("signature", notif.Signature),
				zap.Int64("slot", notif.Slot),
			)
		}
	}

	return records, nil
}

var _ Source = (*WatchSource)(nil)
