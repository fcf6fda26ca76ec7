package domain

// Bucket is the transfer group a reconciled transaction is assigned to.
type Bucket string

const (
	// BucketSimple holds transactions touching at most two token accounts.
	BucketSimple Bucket = "simpleTransfer"
	// BucketComplex holds swaps and multi-leg transfers.
	BucketComplex Bucket = "complexTransfer"
)

// String returns the string representation of Bucket.
func (b Bucket) String() string {
	return string(b)
}

// IsValid checks if the bucket is a known value.
func (b Bucket) IsValid() bool {
	return b == BucketSimple || b == BucketComplex
}
