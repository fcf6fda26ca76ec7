package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

const (
	insertTransactionQuery = `
		INSERT INTO reconciled_transactions (run_id, sequence, tx_hash, bucket, delta_count, mode)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	insertDeltaQuery = `
		INSERT INTO balance_deltas (
			run_id, tx_hash, delta_index, mint, owner, pre_balance, post_balance, change_type, balance_change
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
)

// Insert adds one result. Returns ErrDuplicateKey if (run_id, hash) exists.
func (s *ResultStore) Insert(ctx context.Context, r *domain.TransactionResult) error {
	return s.InsertBulk(ctx, []*domain.TransactionResult{r})
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *ResultStore) InsertBulk(ctx context.Context, results []*domain.TransactionResult) error {
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		if err := storage.Validate(r); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range results {
		_, err := tx.Exec(ctx, insertTransactionQuery,
			r.RunID, r.Sequence, r.Hash, string(r.Bucket), len(r.Deltas), r.Mode,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert transaction %s: %w", r.Hash, err)
		}

		batch := &pgx.Batch{}
		for i, d := range r.Deltas {
			batch.Queue(insertDeltaQuery,
				r.RunID, r.Hash, i,
				d.Mint, d.Owner, d.PreBalance, d.PostBalance, string(d.ChangeType), d.BalanceChange,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert deltas for %s: %w", r.Hash, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByHash retrieves the result of a transaction in a run. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByHash(ctx context.Context, runID, hash string) (*domain.TransactionResult, error) {
	query := `
		SELECT run_id::text, sequence, tx_hash, bucket, mode
		FROM reconciled_transactions
		WHERE run_id = $1 AND tx_hash = $2
	`

	var r domain.TransactionResult
	var bucket string
	err := s.pool.QueryRow(ctx, query, runID, hash).Scan(&r.RunID, &r.Sequence, &r.Hash, &bucket, &r.Mode)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get result by hash: %w", err)
	}
	r.Bucket = domain.Bucket(bucket)

	deltas, err := s.loadDeltas(ctx, runID, []string{hash})
	if err != nil {
		return nil, err
	}
	r.Deltas = deltas[hash]
	if r.Deltas == nil {
		r.Deltas = []domain.BalanceDelta{}
	}

	return &r, nil
}

// ListByBucket retrieves all results of a run in a bucket, ordered by sequence ASC.
func (s *ResultStore) ListByBucket(ctx context.Context, runID string, bucket domain.Bucket) ([]*domain.TransactionResult, error) {
	query := `
		SELECT run_id::text, sequence, tx_hash, bucket, mode
		FROM reconciled_transactions
		WHERE run_id = $1 AND bucket = $2
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, runID, string(bucket))
	if err != nil {
		return nil, fmt.Errorf("list results by bucket: %w", err)
	}
	defer rows.Close()

	var results []*domain.TransactionResult
	var hashes []string
	for rows.Next() {
		var r domain.TransactionResult
		var b string
		if err := rows.Scan(&r.RunID, &r.Sequence, &r.Hash, &b, &r.Mode); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Bucket = domain.Bucket(b)
		results = append(results, &r)
		hashes = append(hashes, r.Hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	if len(results) == 0 {
		return results, nil
	}

	deltas, err := s.loadDeltas(ctx, runID, hashes)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		r.Deltas = deltas[r.Hash]
		if r.Deltas == nil {
			r.Deltas = []domain.BalanceDelta{}
		}
	}

	return results, nil
}

// loadDeltas returns the deltas of the given transactions keyed by hash, in delta order.
func (s *ResultStore) loadDeltas(ctx context.Context, runID string, hashes []string) (map[string][]domain.BalanceDelta, error) {
	query := `
		SELECT tx_hash, mint, owner, pre_balance, post_balance, change_type, balance_change
		FROM balance_deltas
		WHERE run_id = $1 AND tx_hash = ANY($2)
		ORDER BY tx_hash, delta_index ASC
	`

	rows, err := s.pool.Query(ctx, query, runID, hashes)
	if err != nil {
		return nil, fmt.Errorf("load deltas: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.BalanceDelta, len(hashes))
	for rows.Next() {
		var hash, changeType string
		var d domain.BalanceDelta
		if err := rows.Scan(&hash, &d.Mint, &d.Owner, &d.PreBalance, &d.PostBalance, &changeType, &d.BalanceChange); err != nil {
			return nil, fmt.Errorf("scan delta: %w", err)
		}
		d.ChangeType = domain.ChangeType(changeType)
		out[hash] = append(out[hash], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deltas: %w", err)
	}

	return out, nil
}
