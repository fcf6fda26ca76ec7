// Package storage defines persistence for reconciliation results.
package storage

import (
	"context"

	"solana-balance-recon/internal/domain"
)

// ResultStore provides access to reconciled transaction results.
type ResultStore interface {
	// Insert adds one result. Returns ErrDuplicateKey if (run_id, hash) exists.
	Insert(ctx context.Context, r *domain.TransactionResult) error

	// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, results []*domain.TransactionResult) error

	// GetByHash retrieves the result of a transaction in a run. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, runID, hash string) (*domain.TransactionResult, error)

	// ListByBucket retrieves all results of a run in a bucket, ordered by sequence ASC.
	ListByBucket(ctx context.Context, runID string, bucket domain.Bucket) ([]*domain.TransactionResult, error)
}

// Validate checks the fields every store requires.
func Validate(r *domain.TransactionResult) error {
	if r == nil || r.RunID == "" || r.Hash == "" || !r.Bucket.IsValid() {
		return ErrInvalidInput
	}
	for _, d := range r.Deltas {
		if !d.ChangeType.IsValid() {
			return ErrInvalidInput
		}
	}
	return nil
}
