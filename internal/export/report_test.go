package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/reporting"
)

func TestReportSink_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sink := NewReportSink(dir, "legacy", reporting.NewGenerator().WithClock(func() time.Time { return fixed }))

	require.NoError(t, sink.Write(context.Background(), sampleResult()))

	md, err := os.ReadFile(filepath.Join(dir, DefaultReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Generated: 2024-05-01T00:00:00Z")
	assert.Contains(t, string(md), "Run: run-1 | Mode: legacy")
	assert.Contains(t, string(md), "| Balance Deltas | 4 |")
	assert.Contains(t, string(md), "| M1 | 2 | 3 | 0.5 | 2.5 |")

	deltas, err := os.ReadFile(filepath.Join(dir, DefaultDeltasFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(deltas)), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], "0,H1,simpleTransfer,0,M1,A,unknown,"))
}

func TestReportSink_PrefersRunMode(t *testing.T) {
	dir := t.TempDir()
	r := sampleResult()
	r.Mode = "corrected"

	require.NoError(t, NewReportSink(dir, "legacy", nil).Write(context.Background(), r))

	md, err := os.ReadFile(filepath.Join(dir, DefaultReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Run: run-1 | Mode: corrected")
}

func TestReportSink_InvalidChangeWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := &pipeline.Result{
		Simple:  pipeline.NewGroup(domain.BucketSimple),
		Complex: pipeline.NewGroup(domain.BucketComplex),
	}
	r.Simple.Set("H1", 0, []domain.BalanceDelta{{Mint: "M", Owner: "A", ChangeType: domain.ChangeIncrease, BalanceChange: "x"}})

	require.Error(t, NewReportSink(dir, "legacy", nil).Write(context.Background(), r))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
