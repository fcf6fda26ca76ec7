package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/storage"
)

// ResultStore implements storage.ResultStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
type ResultStore struct {
	conn *Conn
}

// NewResultStore creates a new ResultStore.
func NewResultStore(conn *Conn) *ResultStore {
	return &ResultStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

const selectColumns = `
	run_id, sequence, tx_hash, bucket, mode,
	mints, owners, pre_balances, post_balances, change_types, balance_changes
`

// Insert adds one result. Returns ErrDuplicateKey if (run_id, hash) exists.
func (s *ResultStore) Insert(ctx context.Context, r *domain.TransactionResult) error {
	return s.InsertBulk(ctx, []*domain.TransactionResult{r})
}

// InsertBulk adds multiple results in one batch. Fails entire batch on duplicate (run_id, hash).
func (s *ResultStore) InsertBulk(ctx context.Context, results []*domain.TransactionResult) error {
	if len(results) == 0 {
		return nil
	}

	type key struct{ runID, hash string }
	seen := make(map[key]struct{}, len(results))
	for _, r := range results {
		if err := storage.Validate(r); err != nil {
			return err
		}
		k := key{r.RunID, r.Hash}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, r := range results {
		exists, err := s.exists(ctx, r.RunID, r.Hash)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO reconciled_transactions (
			run_id, sequence, tx_hash, bucket, mode,
			mints, owners, pre_balances, post_balances, change_types, balance_changes
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range results {
		n := len(r.Deltas)
		mints := make([]string, n)
		owners := make([]string, n)
		pre := make([]string, n)
		post := make([]string, n)
		changeTypes := make([]string, n)
		changes := make([]string, n)
		for i, d := range r.Deltas {
			mints[i] = d.Mint
			owners[i] = d.Owner
			pre[i] = d.PreBalance
			post[i] = d.PostBalance
			changeTypes[i] = string(d.ChangeType)
			changes[i] = d.BalanceChange
		}

		err := batch.Append(
			r.RunID, uint32(r.Sequence), r.Hash, string(r.Bucket), r.Mode,
			mints, owners, pre, post, changeTypes, changes,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByHash retrieves the result of a transaction in a run. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByHash(ctx context.Context, runID, hash string) (*domain.TransactionResult, error) {
	query := `SELECT ` + selectColumns + `
		FROM reconciled_transactions
		WHERE run_id = ? AND tx_hash = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, runID, hash)
	if err != nil {
		return nil, fmt.Errorf("query by hash: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, storage.ErrNotFound
	}
	return results[0], nil
}

// ListByBucket retrieves all results of a run in a bucket, ordered by sequence ASC.
func (s *ResultStore) ListByBucket(ctx context.Context, runID string, bucket domain.Bucket) ([]*domain.TransactionResult, error) {
	query := `SELECT ` + selectColumns + `
		FROM reconciled_transactions
		WHERE run_id = ? AND bucket = ?
		ORDER BY sequence ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, string(bucket))
	if err != nil {
		return nil, fmt.Errorf("query by bucket: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// exists checks if a result with the given key exists.
func (s *ResultStore) exists(ctx context.Context, runID, hash string) (bool, error) {
	query := `
		SELECT count(*) FROM reconciled_transactions
		WHERE run_id = ? AND tx_hash = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, runID, hash).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanResults scans rows into results, zipping the delta arrays.
func scanResults(rows driver.Rows) ([]*domain.TransactionResult, error) {
	var results []*domain.TransactionResult

	for rows.Next() {
		var (
			r        domain.TransactionResult
			sequence uint32
			bucket   string

			mints, owners, pre, post, changeTypes, changes []string
		)
		err := rows.Scan(
			&r.RunID, &sequence, &r.Hash, &bucket, &r.Mode,
			&mints, &owners, &pre, &post, &changeTypes, &changes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		n := len(mints)
		if len(owners) != n || len(pre) != n || len(post) != n || len(changeTypes) != n || len(changes) != n {
			return nil, fmt.Errorf("result %s: delta arrays differ in length", r.Hash)
		}

		r.Sequence = int(sequence)
		r.Bucket = domain.Bucket(bucket)
		r.Deltas = make([]domain.BalanceDelta, n)
		for i := 0; i < n; i++ {
			r.Deltas[i] = domain.BalanceDelta{
				Mint:          mints[i],
				Owner:         owners[i],
				PreBalance:    pre[i],
				PostBalance:   post[i],
				ChangeType:    domain.ChangeType(changeTypes[i]),
				BalanceChange: changes[i],
			}
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return results, nil
}
