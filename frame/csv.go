package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// missingTokens are the cell values read as missing, in addition to the
// empty string.
var missingTokens = map[string]struct{}{
	"NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "<NA>": {}, "#N/A": {},
}

func isMissingToken(s string) bool {
	if s == "" {
		return true
	}
	_, ok := missingTokens[s]
	return ok
}

// ReadCSV reads a CSV document with a header row. A column is numeric when
// every non-missing cell parses as a float, categorical otherwise. source
// names the input in errors.
func ReadCSV(r io.Reader, source string) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewParseError(source, 1, fmt.Errorf("missing header row"))
	}
	if err != nil {
		return nil, errors.NewParseError(source, lineOf(err, 1), err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	raw := make([][]string, len(header))
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.NewParseError(source, lineOf(err, line), err)
		}
		for j, cell := range record {
			raw[j] = append(raw[j], strings.TrimSpace(cell))
		}
	}

	cols := make([]Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(name, raw[j])
	}
	f, err := New(cols...)
	if err != nil {
		var pe *errors.ParseError
		if errors.As(err, &pe) {
			return nil, errors.NewParseError(source, 1, pe.Err)
		}
		return nil, err
	}
	return f, nil
}

func lineOf(err error, fallback int) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return fallback
}

func inferColumn(name string, cells []string) Column {
	nums := make([]float64, len(cells))
	numeric := true
	for i, cell := range cells {
		if isMissingToken(cell) {
			nums[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = v
	}
	if numeric {
		return Column{name: name, kind: Numeric, nums: nums}
	}

	strs := make([]string, len(cells))
	missing := make([]bool, len(cells))
	for i, cell := range cells {
		if isMissingToken(cell) {
			missing[i] = true
			continue
		}
		strs[i] = cell
	}
	return Column{name: name, kind: Categorical, strs: strs, missing: missing}
}

// WriteCSV writes f with a header row. Missing values are written as empty
// cells.
func WriteCSV(w io.Writer, f *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Names()); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}
	record := make([]string, f.NCols())
	for i := 0; i < f.NRows(); i++ {
		for j, c := range f.cols {
			record[j] = c.FormatValue(i)
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrapf(err, "failed to write csv row %d", i)
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush csv")
}
