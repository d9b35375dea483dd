package ingest

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// ReadCSV reads a CSV export into raw rows. The first record after SkipRows
// is the header. Field counts may vary per record; short rows simply leave
// their trailing columns absent.
func ReadCSV(r io.Reader, opts Options) ([]model.RawRow, error) {
	decoded, err := decodeReader(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv record")
		}
		if skipped < opts.SkipRows {
			skipped++
			continue
		}
		records = append(records, record)
	}

	return assemble(records), nil
}

// ReadCSVFile reads a CSV file from disk.
func ReadCSVFile(path string, opts Options) ([]model.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(f, opts)
}
