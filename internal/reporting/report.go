// Package reporting renders human-readable summaries of a reconciliation run.
package reporting

import "time"

// Owner kinds derived from the owner address.
const (
	OwnerWallet         = "wallet"
	OwnerProgramDerived = "program-derived"
	OwnerUnknown        = "unknown"
)

// Report summarizes one reconciliation run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Mode        string
	Fingerprint string // stable across reruns of the same input and mode

	Summary RunSummary

	// Sorted by change type
	ChangeTypes []ChangeTypeRow

	// Sorted by mint
	Mints []MintRow

	OwnerKinds OwnerKindSummary
}

// RunSummary contains transaction counts.
type RunSummary struct {
	Transactions int // reconciled transactions in both buckets
	Simple       int
	Complex      int
	Skipped      int
	Deltas       int
}

// ChangeTypeRow counts deltas of one change type.
type ChangeTypeRow struct {
	ChangeType string
	Count      int
}

// MintRow aggregates deltas of one mint.
type MintRow struct {
	Mint      string
	Accounts  int    // distinct owners
	Increases string // sum of increase changes
	Decreases string // sum of decrease changes
	Net       string // Increases - Decreases
}

// OwnerKindSummary counts distinct owners by kind.
type OwnerKindSummary struct {
	Wallet         int
	ProgramDerived int
	Unknown        int
}
