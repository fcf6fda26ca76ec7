package pipeline

import (
	"bytes"
	"encoding/json"

	"solana-balance-recon/internal/domain"
)

// Entry is one reconciled transaction inside a Group.
type Entry struct {
	Hash     string
	Sequence int
	Deltas   []domain.BalanceDelta
}

// Group is an insertion-ordered map from transaction hash to deltas.
// Setting an existing hash replaces its deltas and keeps its position.
type Group struct {
	bucket  domain.Bucket
	index   map[string]int
	entries []Entry
}

// NewGroup creates an empty group for bucket.
func NewGroup(bucket domain.Bucket) *Group {
	return &Group{
		bucket: bucket,
		index:  make(map[string]int),
	}
}

// Bucket returns the bucket the group collects.
func (g *Group) Bucket() domain.Bucket {
	return g.bucket
}

// Set stores deltas under hash.
func (g *Group) Set(hash string, sequence int, deltas []domain.BalanceDelta) {
	if deltas == nil {
		deltas = []domain.BalanceDelta{}
	}
	if i, ok := g.index[hash]; ok {
		g.entries[i].Deltas = deltas
		return
	}
	g.index[hash] = len(g.entries)
	g.entries = append(g.entries, Entry{Hash: hash, Sequence: sequence, Deltas: deltas})
}

// Get returns the deltas stored under hash.
func (g *Group) Get(hash string) ([]domain.BalanceDelta, bool) {
	i, ok := g.index[hash]
	if !ok {
		return nil, false
	}
	return g.entries[i].Deltas, true
}

// Len returns the number of transactions in the group.
func (g *Group) Len() int {
	return len(g.entries)
}

// Hashes returns the transaction hashes in insertion order.
func (g *Group) Hashes() []string {
	hashes := make([]string, len(g.entries))
	for i, e := range g.entries {
		hashes[i] = e.Hash
	}
	return hashes
}

// Entries returns a copy of the entries in insertion order.
func (g *Group) Entries() []Entry {
	return append([]Entry(nil), g.entries...)
}

// MarshalJSON encodes the group as an object keyed by hash in insertion order.
func (g *Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range g.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Hash)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Deltas)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
