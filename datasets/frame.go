package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Frame is an ordered table of molecules: one SMILES key column plus named
// numeric target columns. Missing or non-numeric cells are represented as
// NaN, which downstream code treats as "no label".
type Frame struct {
	// SmilesCol is the name of the key column in the source CSV.
	SmilesCol string

	// Smiles holds the key column, in file order.
	Smiles []string

	columns map[string][]float64
	order   []string
}

// ReadFrame loads a CSV file into a Frame. The header must contain
// smilesCol; every other column is parsed as float64 with blank or
// unparseable cells stored as NaN.
func ReadFrame(path, smilesCol string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}

	key := strings.TrimSpace(strings.ToLower(smilesCol))
	smilesIdx, ok := colIndex[key]
	if !ok {
		return nil, fmt.Errorf("required column %q not found in CSV", smilesCol)
	}

	f := &Frame{
		SmilesCol: key,
		columns:   make(map[string][]float64),
	}
	for i, col := range header {
		if i == smilesIdx {
			continue
		}
		name := strings.TrimSpace(strings.ToLower(col))
		f.columns[name] = nil
		f.order = append(f.order, name)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		f.Smiles = append(f.Smiles, strings.TrimSpace(record[smilesIdx]))
		for i, col := range header {
			if i == smilesIdx {
				continue
			}
			name := strings.TrimSpace(strings.ToLower(col))
			v := math.NaN()
			if i < len(record) {
				if parsed, perr := strconv.ParseFloat(strings.TrimSpace(record[i]), 64); perr == nil {
					v = parsed
				}
			}
			f.columns[name] = append(f.columns[name], v)
		}
	}

	if len(f.Smiles) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Smiles) }

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[strings.ToLower(name)]
	return ok
}

// Column returns the values of the named column. The returned slice is the
// backing storage; callers that mutate it mutate the frame.
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.columns[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return col, nil
}

// SetColumn replaces or creates the named column.
func (f *Frame) SetColumn(name string, values []float64) error {
	if len(values) != f.Len() {
		return fmt.Errorf("column %q has %d values for %d rows", name, len(values), f.Len())
	}
	key := strings.ToLower(name)
	if _, ok := f.columns[key]; !ok {
		f.order = append(f.order, key)
	}
	f.columns[key] = values
	return nil
}

// CopyColumn creates dst as a copy of src.
func (f *Frame) CopyColumn(dst, src string) error {
	col, err := f.Column(src)
	if err != nil {
		return err
	}
	out := make([]float64, len(col))
	copy(out, col)
	return f.SetColumn(dst, out)
}

// Columns lists column names in their original order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Select returns a new Frame containing the given rows, in the given order.
func (f *Frame) Select(indices []int) (*Frame, error) {
	out := &Frame{
		SmilesCol: f.SmilesCol,
		columns:   make(map[string][]float64),
		order:     append([]string(nil), f.order...),
	}
	out.Smiles = make([]string, len(indices))
	for _, name := range f.order {
		out.columns[name] = make([]float64, len(indices))
	}
	for pos, idx := range indices {
		if idx < 0 || idx >= f.Len() {
			return nil, fmt.Errorf("row index %d out of range [0, %d)", idx, f.Len())
		}
		out.Smiles[pos] = f.Smiles[idx]
		for _, name := range f.order {
			out.columns[name][pos] = f.columns[name][idx]
		}
	}
	return out, nil
}

// WriteCSV writes the frame with the SMILES key first and six-decimal fixed
// formatting for values. NaN cells are written empty.
func (f *Frame) WriteCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := append([]string{f.SmilesCol}, f.order...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range f.Smiles {
		row := make([]string, 0, len(header))
		row = append(row, f.Smiles[i])
		for _, name := range f.order {
			v := f.columns[name][i]
			if math.IsNaN(v) {
				row = append(row, "")
			} else {
				row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}
