// Package verification re-reconciles stored results against the chain and
// reports every field that no longer matches.
package verification

import (
	"fmt"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/idhash"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // e.g. "Bucket" or "Deltas[1].PostBalance"
	Expected string // stored value
	Actual   string // replayed value
}

// VerificationResult contains the result of verifying a single transaction.
type VerificationResult struct {
	Hash        string
	Sequence    int
	Match       bool
	Divergences []FieldDivergence
}

// VerificationReport contains results for a whole run.
type VerificationReport struct {
	RunID     string
	Total     int
	Matched   int
	Divergent int
	Results   []VerificationResult // in sequence order
}

// CompareResults compares a stored transaction with a replayed one and
// returns divergences. Run ID and sequence are not compared.
func CompareResults(stored, replayed *domain.TransactionResult) []FieldDivergence {
	if idhash.ComputeTransactionFingerprint(stored.Hash, stored.Bucket, stored.Deltas) ==
		idhash.ComputeTransactionFingerprint(replayed.Hash, replayed.Bucket, replayed.Deltas) {
		return nil
	}

	var divergences []FieldDivergence
	add := func(field, expected, actual string) {
		if expected != actual {
			divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
		}
	}

	add("Hash", stored.Hash, replayed.Hash)
	add("Bucket", stored.Bucket.String(), replayed.Bucket.String())

	if len(stored.Deltas) != len(replayed.Deltas) {
		add("Deltas.Len", fmt.Sprint(len(stored.Deltas)), fmt.Sprint(len(replayed.Deltas)))
	}

	n := len(stored.Deltas)
	if len(replayed.Deltas) < n {
		n = len(replayed.Deltas)
	}
	for i := 0; i < n; i++ {
		s, r := stored.Deltas[i], replayed.Deltas[i]
		prefix := fmt.Sprintf("Deltas[%d].", i)
		add(prefix+"Mint", s.Mint, r.Mint)
		add(prefix+"Owner", s.Owner, r.Owner)
		add(prefix+"PreBalance", s.PreBalance, r.PreBalance)
		add(prefix+"PostBalance", s.PostBalance, r.PostBalance)
		add(prefix+"ChangeType", s.ChangeType.String(), r.ChangeType.String())
		add(prefix+"BalanceChange", s.BalanceChange, r.BalanceChange)
	}

	return divergences
}
