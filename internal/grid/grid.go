package grid

import (
	"slices"
	"strconv"
	"strings"

	"ghgcalc/internal/calc"
)

// Cell represents a single cell content.
type Cell struct {
	Text string
}

// Table holds the item rows of one sum block. Columns are marker names
// (FC_j), rows are items 1..Rows.
type Table struct {
	Block   string
	Columns []string
	Rows    int
	Cells   map[[2]int]Cell // key is {row, col}, both 0-based
}

func NewTable(block string, columns []string, rows int) *Table {
	return &Table{
		Block:   block,
		Columns: slices.Clone(columns),
		Rows:    rows,
		Cells:   map[[2]int]Cell{},
	}
}

func (t *Table) Get(r, c int) string {
	return t.Cells[[2]int{r, c}].Text
}

// Set stores text at r,c. Empty text clears the cell.
func (t *Table) Set(r, c int, text string) {
	if r < 0 || c < 0 || c >= len(t.Columns) {
		return
	}
	if r >= t.Rows {
		t.Rows = r + 1
	}
	text = strings.TrimSpace(text)
	if text == "" {
		delete(t.Cells, [2]int{r, c})
		return
	}
	t.Cells[[2]int{r, c}] = Cell{Text: text}
}

// Resize changes the row count, dropping cells past the end.
func (t *Table) Resize(rows int) {
	if rows < 0 {
		rows = 0
	}
	for k := range t.Cells {
		if k[0] >= rows {
			delete(t.Cells, k)
		}
	}
	t.Rows = rows
}

// SetColumns replaces the column set. Data of columns that keep their name survives.
func (t *Table) SetColumns(columns []string) {
	newCells := map[[2]int]Cell{}
	for k, v := range t.Cells {
		if k[1] >= len(t.Columns) {
			continue
		}
		if idx := slices.Index(columns, t.Columns[k[1]]); idx >= 0 {
			newCells[[2]int{k[0], idx}] = v
		}
	}
	t.Columns = slices.Clone(columns)
	t.Cells = newCells
}

// CellName builds the indexed variable name of a cell: column FC_j, row 1 -> FC_2.
func (t *Table) CellName(c, r int) string {
	if c < 0 || c >= len(t.Columns) {
		return "?"
	}
	name, ok := calc.IndexName(t.Columns[c], r+1)
	if !ok {
		return t.Columns[c] + "_" + strconv.Itoa(r+1)
	}
	return name
}

// Lookup finds the cell named like FC_2. Returns 0-based (row, col).
func (t *Table) Lookup(name string) (int, int, bool) {
	name = strings.TrimSpace(name)
	for r := 0; r < t.Rows; r++ {
		for c := range t.Columns {
			if t.CellName(c, r) == name {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// Row returns row r keyed by marker names. Cells that are empty or not numeric are reported.
func (t *Table) Row(r int) (map[string]float64, error) {
	row := make(map[string]float64, len(t.Columns))
	for c, col := range t.Columns {
		text := t.Get(r, c)
		if text == "" {
			return nil, &calc.IndexedVariableMismatchError{Block: t.Block, Index: r + 1, Variable: t.CellName(c, r)}
		}
		v, err := calc.ParseValue(t.CellName(c, r), text)
		if err != nil {
			return nil, err
		}
		row[col] = v
	}
	return row, nil
}

// Items converts every row into bindings keyed by indexed names.
func (t *Table) Items() ([]calc.Bindings, error) {
	items := make([]calc.Bindings, 0, t.Rows)
	for r := 0; r < t.Rows; r++ {
		row, err := t.Row(r)
		if err != nil {
			return nil, err
		}
		items = append(items, calc.IndexItem(row, r+1))
	}
	return items, nil
}

// Filled counts the non-empty cells.
func (t *Table) Filled() int {
	return len(t.Cells)
}
