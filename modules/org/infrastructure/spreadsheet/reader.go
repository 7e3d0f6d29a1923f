// Package spreadsheet reads import sheets and writes flat exports and
// templates as CSV or xlsx workbooks.
package spreadsheet

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
)

var (
	ErrLegacyXLS       = errors.New("legacy .xls workbooks are not supported, save the file as .xlsx")
	ErrUnsupportedType = errors.New("unsupported spreadsheet type")
	ErrMissingHeader   = errors.New("missing header row")
	ErrMissingColumns  = errors.New("missing required columns")
	ErrEmptyWorkbook   = errors.New("workbook has no sheets")
)

// Reader parses import sheets. Sheet selects the xlsx worksheet; empty means
// the first one.
type Reader struct {
	Sheet string
}

func NewReader() *Reader { return &Reader{} }

func (rd *Reader) ReadRows(name string, r io.Reader) ([]interchange.TabularRow, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx", ".xlsm":
		records, err = rd.readXLSX(r)
	case ".xls":
		return nil, ErrLegacyXLS
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	return rowsFromRecords(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func (rd *Reader) readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := rd.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyWorkbook
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return records, nil
}

// rowsFromRecords maps records onto import rows by header name. Header
// matching ignores case and surrounding space, so the flat export reads
// back as an import. Unknown columns and blank lines are skipped.
func rowsFromRecords(records [][]string) ([]interchange.TabularRow, error) {
	if len(records) == 0 {
		return nil, ErrMissingHeader
	}
	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		if !utf8.ValidString(h) {
			return nil, fmt.Errorf("invalid header encoding in column %d", i+1)
		}
		if _, dup := index[h]; !dup && h != "" {
			index[h] = i
		}
	}
	var missing []string
	for _, col := range interchange.RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make([]interchange.TabularRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := interchange.TabularRow{
			Row:              i + 1,
			Line:             i + 2,
			ID:               cell(rec, interchange.ColID),
			Title:            cell(rec, interchange.ColTitle),
			Department:       cell(rec, interchange.ColDepartment),
			ParentID:         cell(rec, interchange.ColParentID),
			Responsibilities: cell(rec, interchange.ColResponsibilities),
			CurrentEmployee:  cell(rec, interchange.ColCurrentEmployee),
		}
		if lv := cell(rec, interchange.ColLevel); lv != "" {
			if n, err := strconv.Atoi(lv); err == nil {
				row.Level = &n
			} else {
				row.RawLevel = lv
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
