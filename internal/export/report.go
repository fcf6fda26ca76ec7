package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/reporting"
)

// Default run report file names.
const (
	DefaultReportFile = "REPORT.md"
	DefaultDeltasFile = "deltas.csv"
)

// ReportSink writes a Markdown summary and a CSV of all deltas.
type ReportSink struct {
	Dir        string
	Mode       string
	ReportFile string
	DeltasFile string
	generator  *reporting.Generator
}

// NewReportSink creates a report sink. mode labels the reconciler mode.
func NewReportSink(dir, mode string, generator *reporting.Generator) *ReportSink {
	if generator == nil {
		generator = reporting.NewGenerator()
	}
	return &ReportSink{
		Dir:        dir,
		Mode:       mode,
		ReportFile: DefaultReportFile,
		DeltasFile: DefaultDeltasFile,
		generator:  generator,
	}
}

// Write renders both files before writing either. The run's own mode takes
// precedence over Mode.
func (s *ReportSink) Write(_ context.Context, result *pipeline.Result) error {
	mode := result.Mode
	if mode == "" {
		mode = s.Mode
	}
	report, err := s.generator.Generate(result, mode)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	deltas, err := reporting.RenderCSV(result)
	if err != nil {
		return fmt.Errorf("render deltas csv: %w", err)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeFiles(
		outputFile{path: filepath.Join(s.Dir, s.ReportFile), data: []byte(reporting.RenderMarkdown(report))},
		outputFile{path: filepath.Join(s.Dir, s.DeltasFile), data: []byte(deltas)},
	)
}

var _ Sink = (*ReportSink)(nil)
