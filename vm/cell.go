package vm

// Cell is a shared single-value box. A frame creates one Cell per captured
// variable it declares; nested functions and their frames hold the same
// pointer, so writes through any holder are visible to all of them.
type Cell struct {
	value Value
	set   bool
}

// NewCell creates an empty cell.
func NewCell() *Cell {
	return &Cell{}
}

// NewCellWith creates a cell holding v.
func NewCellWith(v Value) *Cell {
	return &Cell{value: v, set: true}
}

// Get returns the cell's contents, reporting false if it was never set or
// has been cleared.
func (c *Cell) Get() (Value, bool) {
	return c.value, c.set
}

// Set stores v in the cell.
func (c *Cell) Set(v Value) {
	c.value = v
	c.set = true
}

// Clear empties the cell.
func (c *Cell) Clear() {
	c.value = nil
	c.set = false
}

// IsSet reports whether the cell holds a value.
func (c *Cell) IsSet() bool {
	return c.set
}
