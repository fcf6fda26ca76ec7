// Package export writes the grouped results of a run to their destinations.
package export

import (
	"context"
	"fmt"

	"solana-balance-recon/internal/pipeline"
)

// Sink persists the result of a run.
type Sink interface {
	Write(ctx context.Context, result *pipeline.Result) error
}

// MultiSink writes to each sink in order and stops at the first error.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, result *pipeline.Result) error {
	for i, s := range m {
		if err := s.Write(ctx, result); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

var _ Sink = MultiSink(nil)
