package verification

import (
	"context"
	"errors"
	"testing"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/export"
	"solana-balance-recon/internal/ingestion"
	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/reconcile"
	"solana-balance-recon/internal/solana"
	"solana-balance-recon/internal/solana/stub"
	"solana-balance-recon/internal/storage/memory"
)

func balance(mint, owner, raw string) solana.TokenBalance {
	return solana.TokenBalance{Mint: mint, Owner: owner, UITokenAmount: solana.UITokenAmount{Amount: raw, Decimals: 6}}
}

func transfer(sig, post string) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance("M1", "A", "1000000")},
			PostTokenBalances: []solana.TokenBalance{balance("M1", "A", post)},
		},
	}
}

func swap(sig string) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		Meta: &solana.TransactionMeta{
			PreTokenBalances: []solana.TokenBalance{balance("M1", "A", "1000000"), balance("M2", "A", "0")},
			PostTokenBalances: []solana.TokenBalance{
				balance("M1", "A", "0"), balance("M2", "A", "2000000"), balance("M1", "B", "1000000"),
			},
		},
	}
}

// storedRun reconciles the stub's transactions in legacy mode and stores the result.
func storedRun(t *testing.T, rpc *stub.RPCClient, store *memory.ResultStore, hashes ...string) string {
	t.Helper()
	return storedRunWithMode(t, rpc, store, reconcile.ModeLegacy, hashes...)
}

func storedRunWithMode(t *testing.T, rpc *stub.RPCClient, store *memory.ResultStore, mode reconcile.Mode, hashes ...string) string {
	t.Helper()
	records := make([]domain.InputRecord, len(hashes))
	for i, h := range hashes {
		records[i] = domain.InputRecord{ID: h, TransactionHash: h}
	}

	result, err := pipeline.New(pipeline.Options{
		Fetcher:    ingestion.NewRPCFetcher(rpc),
		Reconciler: reconcile.NewReconciler(mode),
	}).Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := export.NewStoreSink(export.StoreSinkOptions{Store: store}).Write(context.Background(), result); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return result.RunID
}

func TestCompareResults_ExactMatch(t *testing.T) {
	tx := &domain.TransactionResult{
		RunID: "r1", Sequence: 3, Hash: "H1", Bucket: domain.BucketSimple,
		Deltas: []domain.BalanceDelta{{Mint: "M1", Owner: "A", PreBalance: "1", PostBalance: "0.5", ChangeType: domain.ChangeDecrease, BalanceChange: "0.5"}},
	}
	replayed := *tx
	replayed.RunID = ""
	replayed.Sequence = 0

	if d := CompareResults(tx, &replayed); len(d) != 0 {
		t.Errorf("expected no divergences, got %v", d)
	}
}

func TestCompareResults_Divergences(t *testing.T) {
	stored := &domain.TransactionResult{
		Hash: "H1", Bucket: domain.BucketSimple,
		Deltas: []domain.BalanceDelta{{Mint: "M1", Owner: "A", PreBalance: "1", PostBalance: "0.5", ChangeType: domain.ChangeDecrease, BalanceChange: "0.5"}},
	}
	replayed := &domain.TransactionResult{
		Hash: "H1", Bucket: domain.BucketComplex,
		Deltas: []domain.BalanceDelta{
			{Mint: "M1", Owner: "A", PreBalance: "1", PostBalance: "0.25", ChangeType: domain.ChangeDecrease, BalanceChange: "0.75"},
			{Mint: "M2", Owner: "A", PreBalance: "0", PostBalance: "1", ChangeType: domain.ChangeIncrease, BalanceChange: "1"},
		},
	}

	got := CompareResults(stored, replayed)
	want := []FieldDivergence{
		{Field: "Bucket", Expected: "simpleTransfer", Actual: "complexTransfer"},
		{Field: "Deltas.Len", Expected: "1", Actual: "2"},
		{Field: "Deltas[0].PostBalance", Expected: "0.5", Actual: "0.25"},
		{Field: "Deltas[0].BalanceChange", Expected: "0.5", Actual: "0.75"},
	}
	if len(got) != len(want) {
		t.Fatalf("divergences = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("divergence[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReplayVerifier_VerifyRun_AllMatch(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(transfer("H1", "500000"))
	rpc.AddTransaction(swap("H2"))
	store := memory.NewResultStore()
	runID := storedRun(t, rpc, store, "H1", "H2")

	v := NewReplayVerifier(ReplayVerifierOptions{Store: store, Fetcher: ingestion.NewRPCFetcher(rpc)})
	report, err := v.VerifyRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}

	if report.Total != 2 || report.Matched != 2 || report.Divergent != 0 {
		t.Errorf("report = %+v, want 2 matched", report)
	}
	if report.Results[0].Hash != "H1" || report.Results[1].Hash != "H2" {
		t.Errorf("results not in sequence order: %+v", report.Results)
	}
}

func TestReplayVerifier_VerifyRun_Divergent(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(transfer("H1", "500000"))
	rpc.AddTransaction(transfer("H2", "250000"))
	rpc.AddTransaction(transfer("H3", "0"))
	store := memory.NewResultStore()
	runID := storedRun(t, rpc, store, "H1", "H2", "H3")

	// the node now reports different data
	rpc.AddTransaction(transfer("H2", "750000"))
	rpc.FailWith("H3", errors.New("node unavailable"))

	v := NewReplayVerifier(ReplayVerifierOptions{Store: store, Fetcher: ingestion.NewRPCFetcher(rpc)})
	report, err := v.VerifyRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}

	if report.Total != 3 || report.Matched != 1 || report.Divergent != 2 {
		t.Fatalf("report = %+v, want 1 matched, 2 divergent", report)
	}

	h2 := report.Results[1]
	if h2.Match || len(h2.Divergences) != 2 || h2.Divergences[0].Field != "Deltas[0].PostBalance" {
		t.Errorf("H2 divergences = %+v", h2.Divergences)
	}

	h3 := report.Results[2]
	if h3.Match || len(h3.Divergences) != 1 || h3.Divergences[0].Field != "Error" {
		t.Errorf("H3 divergences = %+v", h3.Divergences)
	}
}

func TestReplayVerifier_RunNotFound(t *testing.T) {
	v := NewReplayVerifier(ReplayVerifierOptions{Store: memory.NewResultStore(), Fetcher: ingestion.NewRPCFetcher(stub.NewRPCClient())})

	_, err := v.VerifyRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestReplayVerifier_ContextCancelled(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(transfer("H1", "500000"))
	store := memory.NewResultStore()
	runID := storedRun(t, rpc, store, "H1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rpc.FailWith("H1", context.Canceled)

	v := NewReplayVerifier(ReplayVerifierOptions{Store: store, Fetcher: ingestion.NewRPCFetcher(rpc)})
	if _, err := v.VerifyRun(ctx, runID); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReplayVerifier_UsesStoredMode(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(swap("S1"))
	store := memory.NewResultStore()
	runID := storedRunWithMode(t, rpc, store, reconcile.ModeCorrected, "S1")

	stored, err := store.GetByHash(context.Background(), runID, "S1")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if stored.Mode != "corrected" {
		t.Fatalf("stored mode = %q, want corrected", stored.Mode)
	}

	// the fallback reconciler only applies to results without a stored mode
	v := NewReplayVerifier(ReplayVerifierOptions{
		Store:      store,
		Fetcher:    ingestion.NewRPCFetcher(rpc),
		Reconciler: reconcile.NewReconciler(reconcile.ModeLegacy),
	})
	report, err := v.VerifyRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if report.Matched != 1 || report.Divergent != 0 {
		t.Errorf("report = %+v, want the corrected run to match", report)
	}
}

func TestReplayVerifier_ModelessResultsUseFallback(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(swap("S1"))
	store := memory.NewResultStore()

	snap, err := ingestion.NewRPCFetcher(rpc).FetchSnapshot(context.Background(), "S1")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	deltas, err := reconcile.NewReconciler(reconcile.ModeCorrected).Reconcile(snap.Pre, snap.Post)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := store.Insert(context.Background(), &domain.TransactionResult{
		RunID: "r1", Hash: "S1", Bucket: reconcile.Classify(deltas), Deltas: deltas,
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tests := []struct {
		name      string
		fallback  reconcile.Mode
		wantMatch bool
	}{
		{"legacy fallback", reconcile.ModeLegacy, false},
		{"corrected fallback", reconcile.ModeCorrected, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewReplayVerifier(ReplayVerifierOptions{
				Store:      store,
				Fetcher:    ingestion.NewRPCFetcher(rpc),
				Reconciler: reconcile.NewReconciler(tt.fallback),
			})
			report, err := v.VerifyRun(context.Background(), "r1")
			if err != nil {
				t.Fatalf("VerifyRun: %v", err)
			}
			if got := report.Results[0].Match; got != tt.wantMatch {
				t.Errorf("match = %v, want %v (%+v)", got, tt.wantMatch, report.Results[0].Divergences)
			}
		})
	}
}

func TestReplayVerifier_UnknownStoredMode(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(transfer("H1", "500000"))
	store := memory.NewResultStore()
	if err := store.Insert(context.Background(), &domain.TransactionResult{
		RunID: "r1", Hash: "H1", Bucket: domain.BucketSimple, Mode: "strict",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v := NewReplayVerifier(ReplayVerifierOptions{Store: store, Fetcher: ingestion.NewRPCFetcher(rpc)})
	if _, err := v.VerifyTransaction(context.Background(), &domain.TransactionResult{Hash: "H1", Mode: "strict"}); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}

	report, err := v.VerifyRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if report.Divergent != 1 || report.Results[0].Divergences[0].Field != "Error" {
		t.Errorf("report = %+v, want one Error divergence", report)
	}
}
