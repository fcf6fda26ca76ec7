package ingestion

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/solana"
)

// DefaultPageSize is the getSignaturesForAddress page size used by AddressSource.
const DefaultPageSize = 1000

// AddressSource lists transactions that touched an address.
// Records are returned oldest first and numbered from 1.
type AddressSource struct {
	rpc           solana.RPCClient
	address       string
	limit         int
	pageSize      int
	before        string
	until         string
	includeFailed bool
	logger        *zap.Logger
}

// AddressOptions configures AddressSource.
type AddressOptions struct {
	RPC     solana.RPCClient
	Address string
	// Limit caps the number of signatures collected. Zero means no cap.
	Limit int
	// PageSize defaults to DefaultPageSize.
	PageSize int
	// Before and Until bound the signature range, newest and oldest exclusive.
	Before string
	Until  string
	// IncludeFailed keeps transactions that failed on chain.
	IncludeFailed bool
	Logger        *zap.Logger
}

// NewAddressSource creates an address source.
func NewAddressSource(opts AddressOptions) *AddressSource {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AddressSource{
		rpc:           opts.RPC,
		address:       opts.Address,
		limit:         opts.Limit,
		pageSize:      pageSize,
		before:        opts.Before,
		until:         opts.Until,
		includeFailed: opts.IncludeFailed,
		logger:        logger,
	}
}

// Load pages backwards through the address history.
func (s *AddressSource) Load(ctx context.Context) ([]domain.InputRecord, error) {
	if err := solana.ValidatePubkey(s.address); err != nil {
		return nil, fmt.Errorf("address %q: %w", s.address, err)
	}

	var sigs []string
	before := s.before

	for {
		pageSize := s.pageSize
		if s.limit > 0 && s.limit-len(sigs) < pageSize {
			pageSize = s.limit - len(sigs)
		}

		page, err := s.rpc.GetSignaturesForAddress(ctx, s.address, &solana.SignaturesOpts{
			Before: before,
			Until:  s.until,
			Limit:  pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("get signatures for %s: %w", s.address, err)
		}

		s.logger.Debug("fetched signature page",
			zap.String("address", s.address),
			zap.String("before", before),
			zap.Int("count", len(page)),
		)

		for _, sig := range page {
			if sig.Err != nil && !s.includeFailed {
				continue
			}
			sigs = append(sigs, sig.Signature)
			if s.limit > 0 && len(sigs) >= s.limit {
				break
			}
		}

		if len(page) < pageSize || (s.limit > 0 && len(sigs) >= s.limit) {
			break
		}
		before = page[len(page)-1].Signature
	}

	// Node returns newest first.
	records := make([]domain.InputRecord, len(sigs))
	for i := range sigs {
		records[i] = domain.InputRecord{
			ID:              strconv.Itoa(i + 1),
			TransactionHash: sigs[len(sigs)-1-i],
		}
	}

	s.logger.Info("loaded address history",
		zap.String("address", s.address),
		zap.Int("transactions", len(records)),
	)

	return records, nil
}

var _ Source = (*AddressSource)(nil)
