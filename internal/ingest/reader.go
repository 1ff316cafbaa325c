package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// vatKeywords identify the VAT column of a tabular file by header name.
var vatKeywords = []string{
	"tva", "vat", "numero_tva", "numero_de_tva", "vat_number",
	"tax", "tax_number", "btw", "mwst", "iva", "siret", "siren",
}

// ReadFile validates and reads a VAT list from a local file.
func (v *Validator) ReadFile(path string) (*List, error) {
	if err := v.ValidateExtension(path); err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := v.ValidateSize(fi.Size()); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseText(string(data))
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
		}
		defer f.Close()
		return readWorkbook(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadCSV reads a CSV list with a header row. The delimiter is sniffed from
// the header (",", ";", tab or "|"); the VAT column is detected by name and
// defaults to the first column.
func ReadCSV(r io.Reader) (*List, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return fromRows(rows)
}

func readWorkbook(f *excelize.File) (*List, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyContent
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*List, error) {
	if len(rows) < 2 {
		return nil, ErrEmptyContent
	}
	col := detectVATColumn(rows[0])

	l := &List{}
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if !l.add(row[col]) {
			break
		}
	}
	if len(l.Numbers) == 0 {
		return nil, ErrEmptyContent
	}
	return l, nil
}

func detectVATColumn(headers []string) int {
	for i, h := range headers {
		norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(h)))
		for _, kw := range vatKeywords {
			if strings.Contains(norm, kw) {
				return i
			}
		}
	}
	return 0
}

func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(header, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
