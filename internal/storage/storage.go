package storage

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"ghgcalc/internal/calc"
	"ghgcalc/internal/grid"
)

// SaveCSV writes the item table to a CSV file: a header of marker names, then one row per item.
func SaveCSV(t *grid.Table, filename string) error {
	out := make([][]string, 0, t.Rows+1)
	out = append(out, append([]string(nil), t.Columns...))
	for r := 0; r < t.Rows; r++ {
		row := make([]string, len(t.Columns))
		for c := range t.Columns {
			row[c] = t.Get(r, c)
		}
		out = append(out, row)
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(out); err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}
	return f.Close()
}

// LoadCSV reads an item table written by SaveCSV. Blank lines are skipped.
func LoadCSV(block, filename string) (*grid.Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header row", filename)
	}
	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		if !calc.IsIndexed(name) {
			return nil, fmt.Errorf("%s: column %q is not an indexed variable (want a name with %s)", filename, name, calc.IndexMarker)
		}
		header[i] = name
	}
	t := grid.NewTable(block, header, 0)
	row := 0
	for line, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%s: line %d has %d fields, header has %d", filename, line+2, len(rec), len(header))
		}
		for c, val := range rec {
			t.Set(row, c, val)
		}
		if t.Rows <= row {
			t.Rows = row + 1
		}
		row++
	}
	return t, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
