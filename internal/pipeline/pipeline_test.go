package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/ingestion"
	"solana-balance-recon/internal/observability"
	"solana-balance-recon/internal/reconcile"
	"solana-balance-recon/internal/solana"
	"solana-balance-recon/internal/solana/stub"
)

// fakeFetcher serves snapshots from a map; unknown hashes are absent.
type fakeFetcher struct {
	mu        sync.Mutex
	snapshots map[string]*domain.TransactionSnapshot
	errs      map[string]error
	delays    map[string]time.Duration
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		snapshots: make(map[string]*domain.TransactionSnapshot),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, hash string) (*domain.TransactionSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, hash)
	delay := f.delays[hash]
	err := f.errs[hash]
	snap := f.snapshots[hash]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snap, err
}

func acct(mint, owner, raw string, decimals int) domain.TokenAccountSnapshot {
	return domain.TokenAccountSnapshot{Mint: mint, Owner: owner, RawAmount: raw, Decimals: decimals}
}

func records(hashes ...string) []domain.InputRecord {
	out := make([]domain.InputRecord, len(hashes))
	for i, h := range hashes {
		out[i] = domain.InputRecord{ID: fmt.Sprint(i + 1), TransactionHash: h}
	}
	return out
}

// simpleSnapshot is a one-account decrease from 1 to 0.5.
func simpleSnapshot() *domain.TransactionSnapshot {
	return &domain.TransactionSnapshot{
		Pre:  []domain.TokenAccountSnapshot{acct("M1", "A", "1000000", 6)},
		Post: []domain.TokenAccountSnapshot{acct("M1", "A", "500000", 6)},
	}
}

// postOnlySnapshot has three accounts that exist only after the transaction.
func postOnlySnapshot() *domain.TransactionSnapshot {
	return &domain.TransactionSnapshot{
		Pre: []domain.TokenAccountSnapshot{},
		Post: []domain.TokenAccountSnapshot{
			acct("M1", "A", "1", 0),
			acct("M1", "B", "2", 0),
			acct("M2", "C", "3", 0),
		},
	}
}

func TestPipeline_SimpleTransfer(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = simpleSnapshot()

	result, err := New(Options{Fetcher: f}).Run(context.Background(), records("H1"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Simple.Len())
	assert.Equal(t, 0, result.Complex.Len())

	deltas, ok := result.Simple.Get("H1")
	require.True(t, ok)
	require.Len(t, deltas, 1)
	assert.Equal(t, domain.BalanceDelta{
		Mint:          "M1",
		Owner:         "A",
		PreBalance:    "1",
		PostBalance:   "0.5",
		ChangeType:    domain.ChangeDecrease,
		BalanceChange: "0.5",
	}, deltas[0])
}

func TestPipeline_PostOnlyIsComplex(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H2"] = postOnlySnapshot()

	result, err := New(Options{Fetcher: f}).Run(context.Background(), records("H2"))
	require.NoError(t, err)

	deltas, ok := result.Complex.Get("H2")
	require.True(t, ok)
	require.Len(t, deltas, 3)
	for _, d := range deltas {
		assert.Equal(t, domain.ChangeIncrease, d.ChangeType)
		assert.Equal(t, "0", d.PreBalance)
	}
	assert.Equal(t, 0, result.Simple.Len())
}

func TestPipeline_AbsentIsSkipped(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = simpleSnapshot()

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	result, err := New(Options{Fetcher: f, Metrics: m}).Run(context.Background(), records("missing", "H1"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"H1"}, result.Simple.Hashes())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsSkipped.WithLabelValues(observability.SkipNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues("simpleTransfer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
}

func TestPipeline_MissingBalancesIsFatal(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = simpleSnapshot()
	f.snapshots["bad"] = &domain.TransactionSnapshot{Pre: []domain.TokenAccountSnapshot{}}
	f.snapshots["H3"] = simpleSnapshot()

	result, err := New(Options{Fetcher: f, SkipMalformed: true}).Run(context.Background(), records("H1", "bad", "H3"))
	require.ErrorIs(t, err, domain.ErrMissingBalances)
	assert.Nil(t, result)

	// the run stops at the failing transaction
	assert.Equal(t, []string{"H1", "bad"}, f.calls)
}

func TestPipeline_MalformedIsFatalByDefault(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = &domain.TransactionSnapshot{
		Pre:  []domain.TokenAccountSnapshot{acct("M1", "", "1", 0)},
		Post: []domain.TokenAccountSnapshot{},
	}

	_, err := New(Options{Fetcher: f}).Run(context.Background(), records("H1"))
	assert.ErrorIs(t, err, domain.ErrMissingOwner)
}

func TestPipeline_SkipMalformed(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["owner"] = &domain.TransactionSnapshot{
		Pre:  []domain.TokenAccountSnapshot{acct("M1", "", "1", 0)},
		Post: []domain.TokenAccountSnapshot{},
	}
	f.snapshots["amount"] = &domain.TransactionSnapshot{
		Pre:  []domain.TokenAccountSnapshot{acct("M1", "A", "1.5", 0)},
		Post: []domain.TokenAccountSnapshot{},
	}
	f.snapshots["H1"] = simpleSnapshot()

	core, logs := observer.New(zapcore.WarnLevel)
	result, err := New(Options{
		Fetcher:       f,
		Logger:        zap.New(core),
		SkipMalformed: true,
	}).Run(context.Background(), records("owner", "amount", "H1"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, []string{"H1"}, result.Simple.Hashes())
	assert.Equal(t, 2, logs.FilterMessage("skipping malformed transaction").Len())
}

func TestPipeline_FetchErrorIsFatal(t *testing.T) {
	boom := errors.New("connection refused")
	f := newFakeFetcher()
	f.errs["H1"] = boom

	_, err := New(Options{Fetcher: f}).Run(context.Background(), records("H1"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "H1")
}

func TestPipeline_ProgressLogged(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = simpleSnapshot()
	f.snapshots["H2"] = postOnlySnapshot()

	core, logs := observer.New(zapcore.InfoLevel)
	result, err := New(Options{Fetcher: f, Logger: zap.New(core)}).Run(context.Background(), records("H1", "H2"))
	require.NoError(t, err)

	progress := logs.FilterMessage("processing transaction").All()
	require.Len(t, progress, 2)
	for i, entry := range progress {
		fields := entry.ContextMap()
		assert.Equal(t, int64(i), fields["index"])
		assert.Equal(t, []string{"H1", "H2"}[i], fields["hash"])
		assert.Equal(t, result.RunID, fields["run_id"])
	}
}

func TestPipeline_InputOrderAndDuplicates(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = simpleSnapshot()
	f.snapshots["H2"] = postOnlySnapshot()
	f.snapshots["H3"] = simpleSnapshot()

	result, err := New(Options{Fetcher: f}).Run(context.Background(), records("H3", "H2", "H1", "H3"))
	require.NoError(t, err)

	assert.Equal(t, []string{"H3", "H1"}, result.Simple.Hashes())
	assert.Equal(t, []string{"H2"}, result.Complex.Hashes())

	txs := result.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, "H3", txs[0].Hash)
	assert.Equal(t, "H2", txs[1].Hash)
	assert.Equal(t, domain.BucketComplex, txs[1].Bucket)
	assert.Equal(t, "H1", txs[2].Hash)
	assert.Equal(t, result.RunID, txs[2].RunID)
}

func TestPipeline_ConcurrentMatchesSequential(t *testing.T) {
	f := newFakeFetcher()
	var hashes []string
	for i := 0; i < 20; i++ {
		h := fmt.Sprintf("H%02d", i)
		hashes = append(hashes, h)
		if i%3 == 0 {
			f.snapshots[h] = postOnlySnapshot()
		} else if i%7 != 0 {
			f.snapshots[h] = simpleSnapshot()
		}
		// later inputs finish first
		f.delays[h] = time.Duration(20-i) * time.Millisecond
	}

	seq, err := New(Options{Fetcher: f}).Run(context.Background(), records(hashes...))
	require.NoError(t, err)

	par, err := New(Options{Fetcher: f, Concurrency: 8}).Run(context.Background(), records(hashes...))
	require.NoError(t, err)

	seqJSON, err := json.Marshal(seq.Simple)
	require.NoError(t, err)
	parJSON, err := json.Marshal(par.Simple)
	require.NoError(t, err)
	assert.JSONEq(t, string(seqJSON), string(parJSON))
	assert.Equal(t, seq.Simple.Hashes(), par.Simple.Hashes())
	assert.Equal(t, seq.Complex.Hashes(), par.Complex.Hashes())
	assert.Equal(t, seq.Skipped, par.Skipped)
}

func TestPipeline_ConcurrentErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	f := newFakeFetcher()
	f.errs["bad"] = boom
	f.snapshots["slow"] = simpleSnapshot()
	f.delays["slow"] = 5 * time.Second

	start := time.Now()
	_, err := New(Options{Fetcher: f, Concurrency: 2}).Run(context.Background(), records("slow", "bad"))
	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestPipeline_ContextCancelled(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = simpleSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Fetcher: f}).Run(ctx, records("H1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_CorrectedMode(t *testing.T) {
	f := newFakeFetcher()
	f.snapshots["H1"] = &domain.TransactionSnapshot{
		Pre:  []domain.TokenAccountSnapshot{acct("M1", "A", "5", 0)},
		Post: []domain.TokenAccountSnapshot{},
	}

	result, err := New(Options{
		Fetcher:    f,
		Reconciler: reconcile.NewReconciler(reconcile.ModeCorrected),
	}).Run(context.Background(), records("H1"))
	require.NoError(t, err)

	deltas, _ := result.Simple.Get("H1")
	require.Len(t, deltas, 1)
	assert.Equal(t, domain.ChangeDecrease, deltas[0].ChangeType)
	assert.Equal(t, "5", deltas[0].BalanceChange)

	assert.Equal(t, "corrected", result.Mode)
	txs := result.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "corrected", txs[0].Mode)
}

func TestPipeline_WithRPCFetcher(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(&solana.Transaction{
		Signature: "H1",
		Meta: &solana.TransactionMeta{
			PreTokenBalances: []solana.TokenBalance{
				{Mint: "M1", Owner: "A", UITokenAmount: solana.UITokenAmount{Amount: "1000000", Decimals: 6}},
			},
			PostTokenBalances: []solana.TokenBalance{
				{Mint: "M1", Owner: "A", UITokenAmount: solana.UITokenAmount{Amount: "500000", Decimals: 6}},
			},
		},
	})
	rpc.AddTransaction(&solana.Transaction{Signature: "nometa"})

	var fetcher Fetcher = ingestion.NewRPCFetcher(rpc)
	p := New(Options{Fetcher: fetcher})

	result, err := p.Run(context.Background(), records("unknown", "H1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"H1"}, result.Simple.Hashes())

	_, err = p.Run(context.Background(), records("nometa"))
	assert.ErrorIs(t, err, domain.ErrMissingBalances)
}
