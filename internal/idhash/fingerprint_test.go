package idhash

import (
	"testing"

	"solana-balance-recon/internal/domain"
)

func sampleDeltas() []domain.BalanceDelta {
	return []domain.BalanceDelta{
		{Mint: "M1", Owner: "A", PreBalance: "1", PostBalance: "0.5", ChangeType: domain.ChangeDecrease, BalanceChange: "0.5"},
		{Mint: "M1", Owner: "B", PreBalance: "0", PostBalance: "0.5", ChangeType: domain.ChangeIncrease, BalanceChange: "0.5"},
	}
}

func TestComputeTransactionFingerprint(t *testing.T) {
	got := ComputeTransactionFingerprint("sig1", domain.BucketSimple, sampleDeltas())
	if len(got) != 64 {
		t.Fatalf("fingerprint length = %d, want 64", len(got))
	}

	again := ComputeTransactionFingerprint("sig1", domain.BucketSimple, sampleDeltas())
	if got != again {
		t.Errorf("fingerprint not deterministic: %s != %s", got, again)
	}
}

func TestComputeTransactionFingerprint_Sensitivity(t *testing.T) {
	base := ComputeTransactionFingerprint("sig1", domain.BucketSimple, sampleDeltas())

	changed := sampleDeltas()
	changed[1].BalanceChange = "0.6"

	reordered := sampleDeltas()
	reordered[0], reordered[1] = reordered[1], reordered[0]

	tests := []struct {
		name string
		got  string
	}{
		{"different hash", ComputeTransactionFingerprint("sig2", domain.BucketSimple, sampleDeltas())},
		{"different bucket", ComputeTransactionFingerprint("sig1", domain.BucketComplex, sampleDeltas())},
		{"different amount", ComputeTransactionFingerprint("sig1", domain.BucketSimple, changed)},
		{"different order", ComputeTransactionFingerprint("sig1", domain.BucketSimple, reordered)},
		{"no deltas", ComputeTransactionFingerprint("sig1", domain.BucketSimple, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == base {
				t.Errorf("fingerprint should change")
			}
		})
	}
}

func TestComputeRunFingerprint(t *testing.T) {
	txs := []domain.TransactionResult{
		{RunID: "r1", Sequence: 0, Hash: "sig1", Bucket: domain.BucketSimple, Deltas: sampleDeltas()},
		{RunID: "r1", Sequence: 1, Hash: "sig2", Bucket: domain.BucketSimple},
	}
	other := []domain.TransactionResult{
		{RunID: "r2", Sequence: 5, Hash: "sig1", Bucket: domain.BucketSimple, Deltas: sampleDeltas()},
		{RunID: "r2", Sequence: 9, Hash: "sig2", Bucket: domain.BucketSimple, Deltas: []domain.BalanceDelta{}},
	}

	if ComputeRunFingerprint(txs) != ComputeRunFingerprint(other) {
		t.Errorf("run ID and sequence must not affect the fingerprint")
	}

	swapped := []domain.TransactionResult{txs[1], txs[0]}
	if ComputeRunFingerprint(txs) == ComputeRunFingerprint(swapped) {
		t.Errorf("transaction order must affect the fingerprint")
	}

	if got := ComputeRunFingerprint(nil); len(got) != 64 {
		t.Errorf("empty run fingerprint length = %d, want 64", len(got))
	}
}
