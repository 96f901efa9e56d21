package format

// RowRecord is an ordered mapping from column name to Cell. Columns are
// addressed by name, never by position; the recorded order only matters when
// a handler serializes the row without an explicit header list.
type RowRecord struct {
	columns []string
	cells   map[string]Cell
}

// NewRow creates an empty RowRecord sized for the expected column count.
func NewRow(capacity int) RowRecord {
	return RowRecord{
		columns: make([]string, 0, capacity),
		cells:   make(map[string]Cell, capacity),
	}
}

// Set stores a cell under the column name, recording insertion order for new
// columns.
func (r *RowRecord) Set(column string, c Cell) {
	if _, exists := r.cells[column]; !exists {
		r.columns = append(r.columns, column)
	}
	r.cells[column] = c
}

// Get returns the cell for a column and whether it is present.
func (r RowRecord) Get(column string) (Cell, bool) {
	c, ok := r.cells[column]
	return c, ok
}

// Value returns the cell for a column, or an empty text cell when absent.
// Missing fields render as empty on export.
func (r RowRecord) Value(column string) Cell {
	return r.cells[column]
}

// Columns returns the column names in insertion order.
func (r RowRecord) Columns() []string {
	return r.columns
}

// Len returns the number of columns in the row.
func (r RowRecord) Len() int {
	return len(r.columns)
}

// IsEmpty reports whether every cell in the row is empty.
func (r RowRecord) IsEmpty() bool {
	for _, c := range r.cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
