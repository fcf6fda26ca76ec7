// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"solana-balance-recon/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Unknown signatures resolve to nil, nil the way a node reports them.
type RPCClient struct {
	mu           sync.Mutex
	transactions map[string]*solana.Transaction
	signatures   map[string][]solana.SignatureInfo
	errs         map[string]error
	calls        []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		transactions: make(map[string]*solana.Transaction),
		signatures:   make(map[string][]solana.SignatureInfo),
		errs:         make(map[string]error),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, signature)
	if err, ok := c.errs[signature]; ok {
		return nil, err
	}
	return c.transactions[signature], nil
}

// GetSignaturesForAddress pages through the stored signatures honouring
// Before, Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.errs[address]; ok {
		return nil, err
	}

	sigs := c.signatures[address]
	if opts == nil {
		return append([]solana.SignatureInfo(nil), sigs...), nil
	}

	start := 0
	if opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signatures[address] = sigs
}

// FailWith makes lookups of key (signature or address) return err.
func (c *RPCClient) FailWith(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[key] = err
}

// Calls returns the signatures requested through GetTransaction, in call order.
func (c *RPCClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

var _ solana.RPCClient = (*RPCClient)(nil)
