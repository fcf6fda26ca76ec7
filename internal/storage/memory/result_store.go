// Package memory provides in-memory storage implementations for tests and
// single-shot runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[resultKey]*domain.TransactionResult
}

type resultKey struct {
	runID string
	hash  string
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[resultKey]*domain.TransactionResult),
	}
}

// Insert adds one result. Returns ErrDuplicateKey if exists.
func (s *ResultStore) Insert(_ context.Context, r *domain.TransactionResult) error {
	if err := storage.Validate(r); err != nil {
		return err
	}

	key := resultKey{r.RunID, r.Hash}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = clone(r)
	return nil
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *ResultStore) InsertBulk(_ context.Context, results []*domain.TransactionResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[resultKey]struct{}, len(results))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range results {
		if err := storage.Validate(r); err != nil {
			return err
		}
		key := resultKey{r.RunID, r.Hash}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range results {
		s.data[resultKey{r.RunID, r.Hash}] = clone(r)
	}
	return nil
}

// GetByHash retrieves the result of a transaction in a run.
func (s *ResultStore) GetByHash(_ context.Context, runID, hash string) (*domain.TransactionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[resultKey{runID, hash}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(r), nil
}

// ListByBucket retrieves all results of a run in a bucket, ordered by sequence ASC.
func (s *ResultStore) ListByBucket(_ context.Context, runID string, bucket domain.Bucket) ([]*domain.TransactionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionResult
	for key, r := range s.data {
		if key.runID == runID && r.Bucket == bucket {
			result = append(result, clone(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})

	return result, nil
}

func clone(r *domain.TransactionResult) *domain.TransactionResult {
	c := *r
	c.Deltas = append([]domain.BalanceDelta{}, r.Deltas...)
	return &c
}

var _ storage.ResultStore = (*ResultStore)(nil)
