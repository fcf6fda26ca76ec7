package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"solana-balance-recon/internal/pipeline"
)

var csvHeader = []string{
	"sequence", "transaction_hash", "bucket", "delta_index",
	"mint", "owner", "owner_kind",
	"pre_balance", "post_balance", "change_type", "balance_change",
}

// RenderCSV renders every delta of a run as CSV, in input order.
func RenderCSV(result *pipeline.Result) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}

	for _, tx := range result.Transactions() {
		for i, d := range tx.Deltas {
			row := []string{
				strconv.Itoa(tx.Sequence),
				tx.Hash,
				tx.Bucket.String(),
				strconv.Itoa(i),
				d.Mint,
				d.Owner,
				OwnerKind(d.Owner),
				d.PreBalance,
				d.PostBalance,
				d.ChangeType.String(),
				d.BalanceChange,
			}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
