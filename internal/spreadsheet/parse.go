// Package spreadsheet imports tabular data from Excel workbooks.
//
// Only the first sheet is read. Its first row supplies the column headers;
// every following row becomes a header->text mapping. Cell values are taken
// raw (no date or number formatting) and trimmed.
package spreadsheet

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/starford/tenantdesk/internal/apperr"
)

// DefaultMaxBytes is the upload size limit used when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// User-facing messages.
const (
	MsgNoFile      = "No Excel file uploaded"
	MsgBadFormat   = "File must be .xlsx or .xls format"
	MsgNoSheets    = "Excel file contains no sheets"
	MsgEmpty       = "Excel file is empty or contains no data"
	MsgNoHeaders   = "Excel file has no valid headers"
	msgParseFailed = "Failed to parse Excel file: %s"
)

// Error is an import failure whose Msg can be shown to the uploader as is.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return apperr.ErrInvalidInput
}

// Result is a parsed sheet.
type Result struct {
	Success   bool                `json:"success"`
	Headers   []string            `json:"headers"`
	Rows      []map[string]string `json:"rows"`
	TotalRows int                 `json:"totalRows"`
}

// CheckUpload validates an upload's name and size before it is read.
// maxBytes <= 0 means DefaultMaxBytes.
func CheckUpload(name string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".xlsx" && ext != ".xls" {
		return &Error{Msg: MsgBadFormat}
	}
	if size > maxBytes {
		return &Error{Msg: fmt.Sprintf("File size too large. Maximum allowed: %s, received: %.2fMB",
			formatLimit(maxBytes), float64(size)/1024/1024)}
	}
	return nil
}

func formatLimit(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%.2fMB", float64(n)/1024/1024)
}

// Parse reads the first sheet of the workbook in r.
func Parse(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, openError(err)
	}
	defer f.Close()
	return parseWorkbook(f)
}

// ParseFile is Parse for a workbook on disk.
func ParseFile(path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, openError(err)
	}
	defer f.Close()
	return parseWorkbook(f)
}

// openError reports a workbook that could not be opened. The extension was
// already accepted by CheckUpload, so an unreadable body is a parse failure.
func openError(err error) error {
	return &Error{Msg: fmt.Sprintf(msgParseFailed, err.Error()), Err: err}
}

func parseWorkbook(f *excelize.File) (*Result, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &Error{Msg: MsgNoSheets}
	}
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf(msgParseFailed, err.Error()), Err: err}
	}
	return fromRows(raw)
}

// fromRows turns raw sheet rows into a Result. Headers are kept verbatim;
// data cells are trimmed, and rows with no non-empty cell are dropped.
func fromRows(raw [][]string) (*Result, error) {
	if len(raw) == 0 {
		return nil, &Error{Msg: MsgEmpty}
	}
	headers := raw[0]
	if len(headers) == 0 {
		return nil, &Error{Msg: MsgNoHeaders}
	}

	rows := make([]map[string]string, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, h := range headers {
			var v string
			if i < len(cells) {
				v = strings.TrimSpace(cells[i])
			}
			row[h] = v
			if v != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	return &Result{
		Success:   true,
		Headers:   headers,
		Rows:      rows,
		TotalRows: len(rows),
	}, nil
}
