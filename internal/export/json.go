package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"solana-balance-recon/internal/pipeline"
)

// Default output file names, one document per bucket.
const (
	DefaultSimpleFile  = "usdcTransfers.json"
	DefaultComplexFile = "swapAndTransfers.json"
)

// JSONSink writes each bucket as a JSON object keyed by transaction hash.
type JSONSink struct {
	Dir         string
	SimpleFile  string
	ComplexFile string
	PrettyPrint bool
}

// NewJSONSink creates a JSON sink writing the default file names into dir.
func NewJSONSink(dir string, prettyPrint bool) *JSONSink {
	return &JSONSink{
		Dir:         dir,
		SimpleFile:  DefaultSimpleFile,
		ComplexFile: DefaultComplexFile,
		PrettyPrint: prettyPrint,
	}
}

// Write encodes both buckets before writing either file.
func (s *JSONSink) Write(_ context.Context, result *pipeline.Result) error {
	simple, err := s.format(result.Simple)
	if err != nil {
		return fmt.Errorf("encode simple transfers: %w", err)
	}
	complexDoc, err := s.format(result.Complex)
	if err != nil {
		return fmt.Errorf("encode complex transfers: %w", err)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	return writeFiles(
		outputFile{path: filepath.Join(s.Dir, s.SimpleFile), data: simple},
		outputFile{path: filepath.Join(s.Dir, s.ComplexFile), data: complexDoc},
	)
}

func (s *JSONSink) format(g *pipeline.Group) ([]byte, error) {
	if s.PrettyPrint {
		return json.MarshalIndent(g, "", "  ")
	}
	return json.Marshal(g)
}

type outputFile struct {
	path string
	data []byte
}

// writeFiles replaces each path through a temporary file so readers never
// see a partially written document. Every file is staged before the first
// rename, so a failed write leaves all targets untouched.
func writeFiles(files ...outputFile) error {
	staged := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}()

	for _, f := range files {
		tmp, err := stageFile(f.path, f.data)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}
	for i, f := range files {
		if err := os.Rename(staged[i], f.path); err != nil {
			return fmt.Errorf("rename %s: %w", f.path, err)
		}
	}
	return nil
}

// stageFile writes data to a temporary file next to path and returns its name.
func stageFile(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("chmod %s: %w", path, err)
	}
	return tmp.Name(), nil
}

var _ Sink = (*JSONSink)(nil)
