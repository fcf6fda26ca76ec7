package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used for reconciliation.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	// Returns nil, nil when the node does not know the transaction.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// Transaction represents a Solana transaction with its token balance metadata.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
// Token balance slices are nil when the node omitted them.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is a token account balance reported in transaction metadata.
type TokenBalance struct {
	AccountIndex  int
	Mint          string
	Owner         string // empty when not reported
	ProgramID     string
	UITokenAmount UITokenAmount
}

// UITokenAmount is the raw amount of a token balance with its decimals.
type UITokenAmount struct {
	Amount         string
	Decimals       int
	UIAmountString string
}
