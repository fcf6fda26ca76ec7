package domain

// ChangeType is the direction of a balance delta.
type ChangeType string

const (
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
	ChangeNone     ChangeType = "nochange"
)

// String returns the string representation of ChangeType.
func (c ChangeType) String() string {
	return string(c)
}

// IsValid checks if the change type is a known value.
func (c ChangeType) IsValid() bool {
	return c == ChangeIncrease || c == ChangeDecrease || c == ChangeNone
}

// BalanceDelta is the reconciled balance change of one token account.
// Balances are exact decimal strings; field names are part of the export format.
type BalanceDelta struct {
	Mint          string     `json:"mint"`
	Owner         string     `json:"owner"`
	PreBalance    string     `json:"preBalance"`
	PostBalance   string     `json:"postBalance"`
	ChangeType    ChangeType `json:"changeType"`
	BalanceChange string     `json:"balanceChange"`
}

// TransactionResult is a reconciled transaction as persisted by result stores.
type TransactionResult struct {
	RunID    string
	Sequence int // position of the transaction in the run input
	Hash     string
	Bucket   Bucket
	Deltas   []BalanceDelta
	Mode     string // reconciler mode that produced Deltas, empty when unknown
}
