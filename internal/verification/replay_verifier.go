package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/reconcile"
	"solana-balance-recon/internal/storage"
)

var (
	// ErrRunNotFound is returned when a run has no stored results.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownMode is returned when a stored result names an unknown reconciler mode.
	ErrUnknownMode = errors.New("unknown reconciler mode")
)

// ReplayVerifier fetches stored transactions again and reconciles them with
// the reconciler mode stored alongside each result.
type ReplayVerifier struct {
	store    storage.ResultStore
	fetcher  pipeline.Fetcher
	fallback *reconcile.Reconciler
	logger   *zap.Logger
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Store   storage.ResultStore
	Fetcher pipeline.Fetcher
	// Reconciler is used for results stored without a mode.
	// Defaults to legacy mode.
	Reconciler *reconcile.Reconciler
	Logger     *zap.Logger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	v := &ReplayVerifier{
		store:    opts.Store,
		fetcher:  opts.Fetcher,
		fallback: opts.Reconciler,
		logger:   opts.Logger,
	}
	if v.fallback == nil {
		v.fallback = reconcile.NewReconciler(reconcile.ModeLegacy)
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	return v
}

// VerifyTransaction replays a single stored transaction.
func (v *ReplayVerifier) VerifyTransaction(ctx context.Context, stored *domain.TransactionResult) (*VerificationResult, error) {
	reconciler, err := v.reconcilerFor(stored.Mode)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", stored.Hash, err)
	}

	replayed, err := v.replay(ctx, reconciler, stored.Hash)
	if err != nil {
		return nil, err
	}

	divergences := CompareResults(stored, replayed)
	return &VerificationResult{
		Hash:        stored.Hash,
		Sequence:    stored.Sequence,
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}, nil
}

// VerifyRun verifies every stored transaction of runID in sequence order.
// Per-transaction failures are recorded as divergences; only context
// cancellation and storage errors abort.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	var stored []*domain.TransactionResult
	for _, bucket := range []domain.Bucket{domain.BucketSimple, domain.BucketComplex} {
		rs, err := v.store.ListByBucket(ctx, runID, bucket)
		if err != nil {
			return nil, fmt.Errorf("list %s results: %w", bucket, err)
		}
		stored = append(stored, rs...)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Sequence < stored[j].Sequence })

	report := &VerificationReport{
		RunID:   runID,
		Total:   len(stored),
		Results: make([]VerificationResult, 0, len(stored)),
	}

	for _, tx := range stored {
		result, err := v.VerifyTransaction(ctx, tx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			v.logger.Warn("transaction could not be replayed",
				zap.String("run_id", runID),
				zap.String("hash", tx.Hash),
				zap.Error(err),
			)
			result = &VerificationResult{
				Hash:     tx.Hash,
				Sequence: tx.Sequence,
				Divergences: []FieldDivergence{
					{Field: "Error", Actual: err.Error()},
				},
			}
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.Matched++
		} else {
			report.Divergent++
		}
	}

	return report, nil
}

// reconcilerFor returns a reconciler for a stored mode.
func (v *ReplayVerifier) reconcilerFor(mode string) (*reconcile.Reconciler, error) {
	if mode == "" || mode == string(v.fallback.Mode()) {
		return v.fallback, nil
	}
	m := reconcile.Mode(mode)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return reconcile.NewReconciler(m), nil
}

// replay re-executes fetch, reconcile and classify for one hash.
func (v *ReplayVerifier) replay(ctx context.Context, reconciler *reconcile.Reconciler, hash string) (*domain.TransactionResult, error) {
	snap, err := v.fetcher.FetchSnapshot(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", hash, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("transaction %s no longer found", hash)
	}
	if !snap.HasBalances() {
		return nil, fmt.Errorf("transaction %s: %w", hash, domain.ErrMissingBalances)
	}

	deltas, err := reconciler.Reconcile(snap.Pre, snap.Post)
	if err != nil {
		return nil, fmt.Errorf("reconcile transaction %s: %w", hash, err)
	}

	return &domain.TransactionResult{
		Hash:   hash,
		Bucket: reconcile.Classify(deltas),
		Deltas: deltas,
	}, nil
}
