package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	// Delimiters tried, in order, when none is configured.
	delimiterCandidates = []rune{',', ';', '\t', '|'}
)

type tableData struct {
	header []string
	rows   [][]string
}

func parseTable(fileName string, payload []byte, delimiter, quote string) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt":
		return parseCSV(payload, delimiter, quote)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, delimiter, quote string) (tableData, error) {
	if quote != "" && quote != `"` {
		return tableData{}, fmt.Errorf("unsupported csv quote character %q: only standard double quotes are supported", quote)
	}

	comma, err := resolveDelimiter(payload, delimiter)
	if err != nil {
		return tableData{}, err
	}

	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, peekErr := reader.Peek(len(byteOrderMark)); peekErr == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = comma
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return normalizeTable(rows)
}

// resolveDelimiter returns the configured delimiter, or sniffs one from the
// first line by picking the candidate with the highest column count.
func resolveDelimiter(payload []byte, configured string) (rune, error) {
	if configured != "" {
		r, size := utf8.DecodeRuneInString(configured)
		if size != len(configured) || r == utf8.RuneError {
			return 0, fmt.Errorf("csv delimiter must be a single character, got %q", configured)
		}
		return r, nil
	}

	firstLine := payload
	if idx := bytes.IndexByte(payload, '\n'); idx >= 0 {
		firstLine = payload[:idx]
	}
	firstLine = bytes.TrimPrefix(firstLine, byteOrderMark)

	best := delimiterCandidates[0]
	bestCount := 0
	for _, candidate := range delimiterCandidates {
		count := bytes.Count(firstLine, []byte(string(candidate)))
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best, nil
}

func normalizeTable(records [][]string) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var header []string
	var dataRows [][]string
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if header == nil {
			header = make([]string, len(row))
			for i, cell := range row {
				header[i] = strings.TrimSpace(cell)
			}
			continue
		}
		dataRows = append(dataRows, row)
	}

	if header == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	return tableData{header: header, rows: dataRows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
