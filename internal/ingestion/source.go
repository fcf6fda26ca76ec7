// Package ingestion loads the transaction hashes to reconcile and fetches
// their token balance snapshots from a Solana node.
package ingestion

import (
	"context"
	"errors"

	"solana-balance-recon/internal/domain"
)

// ErrInvalidRecord is returned when an input row cannot be used.
var ErrInvalidRecord = errors.New("invalid input record")

// Source provides the ordered list of transactions to reconcile.
type Source interface {
	// Load returns input records in processing order.
	Load(ctx context.Context) ([]domain.InputRecord, error)
}
