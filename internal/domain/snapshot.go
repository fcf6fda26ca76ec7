package domain

// TokenAccountSnapshot is one entry of a transaction's pre- or post-state
// token balances. Identity for matching is the (Mint, Owner) pair.
type TokenAccountSnapshot struct {
	Mint      string
	Owner     string // empty when the RPC node did not report an owner
	RawAmount string // integer amount in base units
	Decimals  int
}

// SameAccount reports whether s and other refer to the same (mint, owner) pair.
func (s TokenAccountSnapshot) SameAccount(other TokenAccountSnapshot) bool {
	return s.Mint == other.Mint && s.Owner == other.Owner
}

// TransactionSnapshot holds the token balances of one transaction.
// A nil slice means the collection was absent in the fetched data,
// which is different from an empty collection.
type TransactionSnapshot struct {
	Signature string
	Slot      int64
	Pre       []TokenAccountSnapshot
	Post      []TokenAccountSnapshot
}

// HasBalances reports whether both balance collections are present.
func (s *TransactionSnapshot) HasBalances() bool {
	return s != nil && s.Pre != nil && s.Post != nil
}
