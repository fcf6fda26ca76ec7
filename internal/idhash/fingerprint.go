// Package idhash computes deterministic SHA256 fingerprints of reconciled
// transactions so that runs over the same input can be compared.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"solana-balance-recon/internal/domain"
)

// ComputeTransactionFingerprint hashes one transaction's deltas.
// Formula: SHA256(hash|bucket|{mint|owner|pre|post|change_type|change}...)
// Returns hex-encoded hash (64 characters). Sequence and run ID are not
// part of the fingerprint.
func ComputeTransactionFingerprint(txHash string, bucket domain.Bucket, deltas []domain.BalanceDelta) string {
	h := sha256.New()
	writeTransaction(h, txHash, bucket, deltas)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeRunFingerprint hashes every transaction of a run in order.
// Two runs over the same input with the same mode produce the same value.
func ComputeRunFingerprint(txs []domain.TransactionResult) string {
	h := sha256.New()
	for _, tx := range txs {
		writeTransaction(h, tx.Hash, tx.Bucket, tx.Deltas)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeTransaction(h hash.Hash, txHash string, bucket domain.Bucket, deltas []domain.BalanceDelta) {
	fmt.Fprintf(h, "%s|%s|%d", txHash, bucket, len(deltas))
	for _, d := range deltas {
		fmt.Fprintf(h, "|%s|%s|%s|%s|%s|%s",
			d.Mint,
			d.Owner,
			d.PreBalance,
			d.PostBalance,
			d.ChangeType,
			d.BalanceChange,
		)
	}
}
