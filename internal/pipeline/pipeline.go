// Package pipeline drives a reconciliation run: fetch each transaction's
// token balances, reconcile them into deltas and group the results by bucket.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/observability"
	"solana-balance-recon/internal/reconcile"
)

// Fetcher loads the token balance snapshot of a transaction.
type Fetcher interface {
	// FetchSnapshot returns nil, nil when the transaction does not exist.
	FetchSnapshot(ctx context.Context, hash string) (*domain.TransactionSnapshot, error)
}

// Result holds the grouped output of one run.
type Result struct {
	RunID   string
	Mode    string // reconciler mode of the run
	Simple  *Group
	Complex *Group
	// Skipped counts transactions that produced no entry.
	Skipped int
}

func newResult(runID, mode string) *Result {
	return &Result{
		RunID:   runID,
		Mode:    mode,
		Simple:  NewGroup(domain.BucketSimple),
		Complex: NewGroup(domain.BucketComplex),
	}
}

// Group returns the group collecting bucket.
func (r *Result) Group(bucket domain.Bucket) *Group {
	if bucket == domain.BucketComplex {
		return r.Complex
	}
	return r.Simple
}

// Transactions returns every grouped transaction ordered by input position.
func (r *Result) Transactions() []domain.TransactionResult {
	out := make([]domain.TransactionResult, 0, r.Simple.Len()+r.Complex.Len())
	s, c := r.Simple.entries, r.Complex.entries

	// merge by sequence
	for len(s) > 0 || len(c) > 0 {
		var e Entry
		var bucket domain.Bucket
		if len(c) == 0 || (len(s) > 0 && s[0].Sequence <= c[0].Sequence) {
			e, bucket, s = s[0], domain.BucketSimple, s[1:]
		} else {
			e, bucket, c = c[0], domain.BucketComplex, c[1:]
		}
		out = append(out, domain.TransactionResult{
			RunID:    r.RunID,
			Mode:     r.Mode,
			Sequence: e.Sequence,
			Hash:     e.Hash,
			Bucket:   bucket,
			Deltas:   e.Deltas,
		})
	}
	return out
}

// Options configures Pipeline.
type Options struct {
	Fetcher    Fetcher
	Reconciler *reconcile.Reconciler
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// Concurrency bounds parallel fetches. Values below 2 run sequentially.
	Concurrency int
	// SkipMalformed logs and skips transactions with invalid amounts or
	// missing owners instead of failing the run.
	SkipMalformed bool
}

// Pipeline reconciles an ordered list of transactions.
type Pipeline struct {
	fetcher       Fetcher
	reconciler    *reconcile.Reconciler
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	skipMalformed bool
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		fetcher:       opts.Fetcher,
		reconciler:    opts.Reconciler,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		concurrency:   opts.Concurrency,
		skipMalformed: opts.SkipMalformed,
	}
	if p.reconciler == nil {
		p.reconciler = reconcile.NewReconciler(reconcile.ModeLegacy)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// outcome is the per-transaction result; nil means skipped.
type outcome struct {
	bucket domain.Bucket
	deltas []domain.BalanceDelta
}

// Run processes records in input order. Any fatal error aborts the run and
// no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, records []domain.InputRecord) (*Result, error) {
	start := time.Now()
	result := newResult(uuid.NewString(), string(p.reconciler.Mode()))

	logger := p.logger.With(zap.String("run_id", result.RunID))
	logger.Info("starting reconciliation run",
		zap.Int("transactions", len(records)),
		zap.String("mode", string(p.reconciler.Mode())),
		zap.Int("concurrency", p.concurrency),
	)

	outcomes, err := p.processAll(ctx, logger, records)
	if err != nil {
		p.metrics.RecordRun("failure", time.Since(start))
		return nil, err
	}

	for i, o := range outcomes {
		if o == nil {
			result.Skipped++
			continue
		}
		result.Group(o.bucket).Set(records[i].TransactionHash, i, o.deltas)
	}

	p.metrics.RecordRun("success", time.Since(start))
	logger.Info("reconciliation run finished",
		zap.Int("simple", result.Simple.Len()),
		zap.Int("complex", result.Complex.Len()),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// processAll returns one outcome per record, slotted by input index.
func (p *Pipeline) processAll(ctx context.Context, logger *zap.Logger, records []domain.InputRecord) ([]*outcome, error) {
	outcomes := make([]*outcome, len(records))

	if p.concurrency == 1 {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			o, err := p.process(ctx, logger, i, rec.TransactionHash)
			if err != nil {
				return nil, err
			}
			outcomes[i] = o
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			o, err := p.process(gctx, logger, i, rec.TransactionHash)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (p *Pipeline) process(ctx context.Context, logger *zap.Logger, index int, hash string) (*outcome, error) {
	logger.Info("processing transaction", zap.Int("index", index), zap.String("hash", hash))

	fetchStart := time.Now()
	snap, err := p.fetcher.FetchSnapshot(ctx, hash)
	p.metrics.ObserveFetch(time.Since(fetchStart))
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", hash, err)
	}

	if snap == nil {
		logger.Info("transaction not found, skipping", zap.String("hash", hash))
		p.metrics.RecordSkipped(observability.SkipNotFound)
		return nil, nil
	}

	if !snap.HasBalances() {
		return nil, fmt.Errorf("transaction %s: %w", hash, domain.ErrMissingBalances)
	}

	deltas, err := p.reconciler.Reconcile(snap.Pre, snap.Post)
	if err != nil {
		if p.skipMalformed && (errors.Is(err, domain.ErrInvalidAmount) || errors.Is(err, domain.ErrMissingOwner)) {
			logger.Warn("skipping malformed transaction", zap.String("hash", hash), zap.Error(err))
			p.metrics.RecordSkipped(observability.SkipMalformed)
			return nil, nil
		}
		return nil, fmt.Errorf("reconcile transaction %s: %w", hash, err)
	}

	bucket := reconcile.Classify(deltas)
	logger.Debug("transaction classified",
		zap.String("hash", hash),
		zap.String("bucket", bucket.String()),
		zap.Int("deltas", len(deltas)),
	)

	changeTypes := make([]string, len(deltas))
	for i, d := range deltas {
		changeTypes[i] = d.ChangeType.String()
	}
	p.metrics.RecordProcessed(bucket.String(), changeTypes)

	return &outcome{bucket: bucket, deltas: deltas}, nil
}
