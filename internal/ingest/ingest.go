// Package ingest reads crew billing sheets into raw rows. Sources are local
// XLSX and CSV exports plus FTP drops from the field offices; whatever the
// source, the output is the same header-keyed row map the normalizer expects.
package ingest

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// Options configures sheet parsing.
type Options struct {
	SheetName string // XLSX only; empty selects the first sheet
	SkipRows  int    // rows above the header (title banners, export stamps)
	Charset   string // CSV only; empty means UTF-8
}

// ReadFile parses a local sheet, dispatching on the file extension.
func ReadFile(path string, opts Options) ([]model.RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts)
	case ".csv":
		return ReadCSVFile(path, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// assemble zips the header row with each data row. Blank header cells are
// dropped, short rows leave their trailing columns absent, and fully empty
// rows (trailing blanks in most exports) are skipped.
func assemble(records [][]string) []model.RawRow {
	if len(records) < 2 {
		return nil
	}

	header := records[0]
	rows := make([]model.RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if allBlank(rec) {
			continue
		}
		raw := make(model.RawRow, len(header))
		for i, name := range header {
			if strings.TrimSpace(name) == "" || i >= len(rec) {
				continue
			}
			raw[name] = rec[i]
		}
		rows = append(rows, raw)
	}
	return rows
}

func allBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// decodeReader wraps r with a charset decoder when one is configured.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
