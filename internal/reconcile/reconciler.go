// Package reconcile matches pre- and post-state token balances of a
// transaction and turns them into per-account balance deltas.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"solana-balance-recon/internal/amount"
	"solana-balance-recon/internal/domain"
)

// Mode selects how accounts present on only one side are reported.
type Mode string

const (
	// ModeLegacy reports an account missing from the post state as "nochange"
	// and writes the unscaled raw amount as postBalance of post-only accounts.
	// Exported results are compatible with the historical output files.
	ModeLegacy Mode = "legacy"

	// ModeCorrected reports an account missing from the post state as a
	// decrease to zero and scales postBalance of post-only accounts.
	ModeCorrected Mode = "corrected"
)

// IsValid checks if the mode is a known value.
func (m Mode) IsValid() bool {
	return m == ModeLegacy || m == ModeCorrected
}

// Reconciler computes balance deltas for one transaction at a time.
// It holds no per-transaction state and is safe for concurrent use.
type Reconciler struct {
	mode Mode
}

// NewReconciler creates a reconciler. An empty mode means ModeLegacy.
func NewReconciler(mode Mode) *Reconciler {
	if mode == "" {
		mode = ModeLegacy
	}
	return &Reconciler{mode: mode}
}

// Mode returns the reporting mode of the reconciler.
func (r *Reconciler) Mode() Mode {
	return r.mode
}

// Reconcile matches pre against post by (mint, owner) and returns the deltas:
// one per pre entry in pre order, followed by one per unmatched post entry in
// post order. Each post entry is matched to at most one pre entry, the first
// unclaimed one in post order wins.
func (r *Reconciler) Reconcile(pre, post []domain.TokenAccountSnapshot) ([]domain.BalanceDelta, error) {
	if pre == nil || post == nil {
		return nil, domain.ErrMissingBalances
	}

	claimed := make([]bool, len(post))
	deltas := make([]domain.BalanceDelta, 0, len(pre)+len(post))

	for i, p := range pre {
		if p.Owner == "" {
			return nil, fmt.Errorf("pre balance %d (mint %s): %w", i, p.Mint, domain.ErrMissingOwner)
		}

		preValue, err := amount.ToDecimal(p.RawAmount, p.Decimals)
		if err != nil {
			return nil, fmt.Errorf("pre balance %d (mint %s, owner %s): %w", i, p.Mint, p.Owner, err)
		}

		j := findUnclaimed(post, claimed, p)
		if j < 0 {
			deltas = append(deltas, r.missingPost(p, preValue))
			continue
		}
		claimed[j] = true

		postValue, err := amount.ToDecimal(post[j].RawAmount, post[j].Decimals)
		if err != nil {
			return nil, fmt.Errorf("post balance %d (mint %s, owner %s): %w", j, post[j].Mint, post[j].Owner, err)
		}

		deltas = append(deltas, matched(p, preValue, postValue))
	}

	for j, q := range post {
		if claimed[j] {
			continue
		}
		if q.Owner == "" {
			return nil, fmt.Errorf("post balance %d (mint %s): %w", j, q.Mint, domain.ErrMissingOwner)
		}

		postValue, err := amount.ToDecimal(q.RawAmount, q.Decimals)
		if err != nil {
			return nil, fmt.Errorf("post balance %d (mint %s, owner %s): %w", j, q.Mint, q.Owner, err)
		}

		deltas = append(deltas, r.postOnly(q, postValue))
	}

	return deltas, nil
}

// findUnclaimed returns the index of the first unclaimed post entry for the
// same account as p, or -1.
func findUnclaimed(post []domain.TokenAccountSnapshot, claimed []bool, p domain.TokenAccountSnapshot) int {
	for j := range post {
		if !claimed[j] && post[j].SameAccount(p) {
			return j
		}
	}
	return -1
}

func matched(p domain.TokenAccountSnapshot, preValue, postValue decimal.Decimal) domain.BalanceDelta {
	diff := amount.Difference(preValue, postValue)

	d := domain.BalanceDelta{
		Mint:          p.Mint,
		Owner:         p.Owner,
		PreBalance:    amount.Format(preValue),
		PostBalance:   amount.Format(postValue),
		ChangeType:    changeTypeOf(diff),
		BalanceChange: amount.Magnitude(diff),
	}
	return d
}

// changeTypeOf maps the sign of pre - post to a direction.
func changeTypeOf(diff decimal.Decimal) domain.ChangeType {
	switch diff.Sign() {
	case 1:
		return domain.ChangeDecrease
	case -1:
		return domain.ChangeIncrease
	default:
		return domain.ChangeNone
	}
}

func (r *Reconciler) missingPost(p domain.TokenAccountSnapshot, preValue decimal.Decimal) domain.BalanceDelta {
	d := domain.BalanceDelta{
		Mint:          p.Mint,
		Owner:         p.Owner,
		PreBalance:    amount.Format(preValue),
		PostBalance:   amount.Zero,
		ChangeType:    domain.ChangeNone,
		BalanceChange: amount.Zero,
	}
	if r.mode == ModeCorrected {
		d.ChangeType = changeTypeOf(preValue)
		d.BalanceChange = amount.Magnitude(preValue)
	}
	return d
}

func (r *Reconciler) postOnly(q domain.TokenAccountSnapshot, postValue decimal.Decimal) domain.BalanceDelta {
	d := domain.BalanceDelta{
		Mint:          q.Mint,
		Owner:         q.Owner,
		PreBalance:    amount.Zero,
		PostBalance:   q.RawAmount,
		ChangeType:    domain.ChangeIncrease,
		BalanceChange: amount.Format(postValue),
	}
	if r.mode == ModeCorrected {
		d.PostBalance = amount.Format(postValue)
		d.ChangeType = changeTypeOf(postValue.Neg())
		d.BalanceChange = amount.Magnitude(postValue)
	}
	return d
}
