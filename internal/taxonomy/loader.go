package taxonomy

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Encodings accepted for delimited files.
const (
	EncodingAuto    = "auto"
	EncodingUTF8    = "utf-8"
	EncodingWin1251 = "windows-1251"
)

// LoadOptions describes the classifier table layout.
type LoadOptions struct {
	Delimiter rune   // CSV only, defaults to ';'
	Encoding  string // CSV only, defaults to auto detection
	Sheet     string // XLSX only, defaults to the first sheet
}

// LoadResult lists the codes read from the first column of a table.
type LoadResult struct {
	Codes   []string
	Skipped int // rows whose first cell is not a code (headers, notes)
}

// LoadFile reads a classifier table from a .csv/.txt or .xlsx file.
func LoadFile(path string, opts LoadOptions) (LoadResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts.Sheet)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return LoadResult{}, fmt.Errorf("read classifier file %s: %w", path, err)
		}
		return ReadCSV(data, opts)
	}
}

// ReadCSV parses a delimited table whose first column holds codes.
func ReadCSV(data []byte, opts LoadOptions) (LoadResult, error) {
	text, err := decode(data, opts.Encoding)
	if err != nil {
		return LoadResult{}, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = opts.Delimiter
	if r.Comma == 0 {
		r.Comma = ';'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return LoadResult{}, fmt.Errorf("parse classifier csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return firstColumnCodes(rows), nil
}

// ReadXLSX reads the first column of a worksheet.
func ReadXLSX(path, sheet string) (LoadResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("open classifier workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	return firstColumnCodes(rows), nil
}

func firstColumnCodes(rows [][]string) LoadResult {
	var res LoadResult
	seen := make(map[string]bool)
	for _, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		code := strings.TrimSpace(row[0])
		if !IsCode(code) {
			res.Skipped++
			continue
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		res.Codes = append(res.Codes, code)
	}
	return res
}

func decode(data []byte, encoding string) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	switch strings.ToLower(encoding) {
	case "", EncodingAuto:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return charmap.Windows1251.NewDecoder().String(string(data))
	case EncodingUTF8, "utf8":
		return string(data), nil
	case EncodingWin1251, "cp1251":
		return charmap.Windows1251.NewDecoder().String(string(data))
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}
