package reconcile

import "solana-balance-recon/internal/domain"

// SimpleTransferMaxDeltas is the largest delta count still classified as a
// simple transfer: a plain token transfer touches a sender and a receiver.
const SimpleTransferMaxDeltas = 2

// Classify assigns a bucket from the number of deltas alone.
func Classify(deltas []domain.BalanceDelta) domain.Bucket {
	if len(deltas) <= SimpleTransferMaxDeltas {
		return domain.BucketSimple
	}
	return domain.BucketComplex
}
