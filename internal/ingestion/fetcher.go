package ingestion

import (
	"context"
	"fmt"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/solana"
)

// RPCFetcher loads token balance snapshots through a Solana RPC client.
type RPCFetcher struct {
	rpc solana.RPCClient
}

// NewRPCFetcher creates a fetcher backed by rpc.
func NewRPCFetcher(rpc solana.RPCClient) *RPCFetcher {
	return &RPCFetcher{rpc: rpc}
}

// FetchSnapshot returns the token balances of the transaction with the given
// signature, or nil, nil when the node does not know it. A transaction
// without metadata yields a snapshot whose balance collections are absent.
func (f *RPCFetcher) FetchSnapshot(ctx context.Context, signature string) (*domain.TransactionSnapshot, error) {
	tx, err := f.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if tx == nil {
		return nil, nil
	}

	snap := &domain.TransactionSnapshot{
		Signature: signature,
		Slot:      tx.Slot,
	}
	if tx.Meta != nil {
		snap.Pre = toSnapshots(tx.Meta.PreTokenBalances)
		snap.Post = toSnapshots(tx.Meta.PostTokenBalances)
	}
	return snap, nil
}

// toSnapshots keeps nil distinct from empty.
func toSnapshots(balances []solana.TokenBalance) []domain.TokenAccountSnapshot {
	if balances == nil {
		return nil
	}
	out := make([]domain.TokenAccountSnapshot, len(balances))
	for i, b := range balances {
		out[i] = domain.TokenAccountSnapshot{
			Mint:      b.Mint,
			Owner:     b.Owner,
			RawAmount: b.UITokenAmount.Amount,
			Decimals:  b.UITokenAmount.Decimals,
		}
	}
	return out
}
