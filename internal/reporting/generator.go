package reporting

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-balance-recon/internal/amount"
	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/idhash"
	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/solana"
)

// Generator produces reports from run results.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

type mintTotals struct {
	owners    map[string]struct{}
	increases decimal.Decimal
	decreases decimal.Decimal
}

// Generate builds a report for result. mode is the reconciler mode label.
func (g *Generator) Generate(result *pipeline.Result, mode string) (*Report, error) {
	r := &Report{
		GeneratedAt: g.now(),
		RunID:       result.RunID,
		Mode:        mode,
		Summary: RunSummary{
			Simple:  result.Simple.Len(),
			Complex: result.Complex.Len(),
			Skipped: result.Skipped,
		},
	}
	r.Summary.Transactions = r.Summary.Simple + r.Summary.Complex

	txs := result.Transactions()
	r.Fingerprint = idhash.ComputeRunFingerprint(txs)

	changeCounts := make(map[string]int)
	mints := make(map[string]*mintTotals)
	owners := make(map[string]struct{})

	for _, tx := range txs {
		for _, d := range tx.Deltas {
			r.Summary.Deltas++
			changeCounts[string(d.ChangeType)]++
			owners[d.Owner] = struct{}{}

			m, ok := mints[d.Mint]
			if !ok {
				m = &mintTotals{owners: make(map[string]struct{})}
				mints[d.Mint] = m
			}
			m.owners[d.Owner] = struct{}{}

			change, err := decimal.NewFromString(d.BalanceChange)
			if err != nil {
				return nil, fmt.Errorf("transaction %s: balance change %q: %w", tx.Hash, d.BalanceChange, err)
			}
			switch d.ChangeType {
			case domain.ChangeIncrease:
				m.increases = m.increases.Add(change)
			case domain.ChangeDecrease:
				m.decreases = m.decreases.Add(change)
			}
		}
	}

	for ct, n := range changeCounts {
		r.ChangeTypes = append(r.ChangeTypes, ChangeTypeRow{ChangeType: ct, Count: n})
	}
	sort.Slice(r.ChangeTypes, func(i, j int) bool {
		return r.ChangeTypes[i].ChangeType < r.ChangeTypes[j].ChangeType
	})

	for mint, m := range mints {
		r.Mints = append(r.Mints, MintRow{
			Mint:      mint,
			Accounts:  len(m.owners),
			Increases: amount.Format(m.increases),
			Decreases: amount.Format(m.decreases),
			Net:       amount.Format(m.increases.Sub(m.decreases)),
		})
	}
	sort.Slice(r.Mints, func(i, j int) bool {
		return r.Mints[i].Mint < r.Mints[j].Mint
	})

	for owner := range owners {
		switch OwnerKind(owner) {
		case OwnerWallet:
			r.OwnerKinds.Wallet++
		case OwnerProgramDerived:
			r.OwnerKinds.ProgramDerived++
		default:
			r.OwnerKinds.Unknown++
		}
	}

	return r, nil
}

// OwnerKind classifies an owner address. Keys on the ed25519 curve belong
// to wallets, valid keys off the curve are program derived.
func OwnerKind(owner string) string {
	if err := solana.ValidatePubkey(owner); err != nil {
		return OwnerUnknown
	}
	if solana.IsOnCurve(owner) {
		return OwnerWallet
	}
	return OwnerProgramDerived
}
