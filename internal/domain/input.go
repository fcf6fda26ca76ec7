package domain

// InputRecord is one row of the reconciliation input.
type InputRecord struct {
	ID              string `json:"id"`
	TransactionHash string `json:"transaction_hash"`
}
