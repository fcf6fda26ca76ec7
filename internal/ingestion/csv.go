package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"solana-balance-recon/internal/domain"
	"solana-balance-recon/internal/solana"
)

// CSVSource reads input records from a delimited file with a header row.
// Columns are positional: id, transaction_hash. The header is skipped
// whatever its content.
type CSVSource struct {
	path               string
	comma              rune
	validateSignatures bool
}

// CSVOptions configures CSVSource.
type CSVOptions struct {
	// Comma is the field delimiter. Defaults to ','.
	Comma rune
	// ValidateSignatures rejects rows whose hash is not a base58 signature.
	ValidateSignatures bool
}

// NewCSVSource creates a CSV source for the file at path.
func NewCSVSource(path string, opts CSVOptions) *CSVSource {
	comma := opts.Comma
	if comma == 0 {
		comma = ','
	}
	return &CSVSource{
		path:               path,
		comma:              comma,
		validateSignatures: opts.ValidateSignatures,
	}
}

// Load reads all records from the file.
func (s *CSVSource) Load(_ context.Context) ([]domain.InputRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}
	defer f.Close()

	return s.read(f)
}

func (s *CSVSource) read(r io.Reader) ([]domain.InputRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = s.comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []domain.InputRecord{}, nil
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	records := []domain.InputRecord{}
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError carries its own line number.
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		// file line, blank lines included
		row, _ := reader.FieldPos(0)

		if len(fields) != 2 {
			return nil, fmt.Errorf("row %d: expected 2 fields, got %d: %w", row, len(fields), ErrInvalidRecord)
		}

		rec := domain.InputRecord{
			ID:              fields[0],
			TransactionHash: strings.TrimSpace(fields[1]),
		}

		if s.validateSignatures {
			if err := solana.ValidateSignature(rec.TransactionHash); err != nil {
				return nil, fmt.Errorf("row %d: %w: %v", row, ErrInvalidRecord, err)
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

var _ Source = (*CSVSource)(nil)
