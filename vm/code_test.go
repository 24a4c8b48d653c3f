package vm

import "testing"

func TestLineForOffset(t *testing.T) {
	c := &Code{
		FirstLineNo: 10,
		LineTable:   []LineEntry{{0, 10}, {6, 1}, {4, 2}},
	}
	tests := []struct {
		offset int
		want   int
	}{
		{0, 10},
		{5, 10},
		{6, 11},
		{7, 11},
		{9, 11},
		{10, 13},
		{12, 13},
		{400, 13},
	}
	for _, tt := range tests {
		if got := c.LineForOffset(tt.offset); got != tt.want {
			t.Errorf("LineForOffset(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestLineForOffsetEmptyTable(t *testing.T) {
	c := &Code{FirstLineNo: 7}
	if got := c.LineForOffset(3); got != 7 {
		t.Errorf("LineForOffset(3) = %d, want 7", got)
	}
}

func TestSetLineBuildsDeltas(t *testing.T) {
	b := NewCodeBuilder("f", "<test>", 4)
	b.LoadConst(None) // 0..2 on line 4
	b.SetLine(4)      // unchanged line adds nothing
	b.Emit(OpPopTop)  // 3
	b.SetLine(6)
	b.LoadConst(None).Return() // 4..7 on line 6
	c := b.Build()

	want := []LineEntry{{0, 4}, {4, 2}}
	if len(c.LineTable) != len(want) {
		t.Fatalf("LineTable = %v, want %v", c.LineTable, want)
	}
	for i := range want {
		if c.LineTable[i] != want[i] {
			t.Errorf("LineTable[%d] = %v, want %v", i, c.LineTable[i], want[i])
		}
	}
	if got := c.LineForOffset(3); got != 4 {
		t.Errorf("LineForOffset(3) = %d, want 4", got)
	}
	if got := c.LineForOffset(7); got != 6 {
		t.Errorf("LineForOffset(7) = %d, want 6", got)
	}
}

func TestCodeDoc(t *testing.T) {
	tests := []struct {
		name   string
		consts []Value
		want   Value
	}{
		{"string first", []Value{Str("Adds things."), Int(1)}, Str("Adds things.")},
		{"int first", []Value{Int(1), Str("not a doc")}, None},
		{"no consts", nil, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Code{Consts: tt.consts}
			if got := c.Doc(); got != tt.want {
				t.Errorf("Doc() = %v, want %v", Repr(got), Repr(tt.want))
			}
		})
	}
}

func TestAddConstSharesScalars(t *testing.T) {
	b := NewCodeBuilder("f", "<test>", 1)
	i1 := b.AddConst(Int(1))
	i2 := b.AddConst(Int(1))
	f1 := b.AddConst(Float(1))
	t1 := b.AddConst(Bool(true))
	tu := b.AddConst(NewTuple())
	tu2 := b.AddConst(NewTuple())

	if i1 != i2 {
		t.Errorf("Int(1) stored twice: %d and %d", i1, i2)
	}
	if f1 == i1 || t1 == i1 {
		t.Errorf("1, 1.0 and True must have distinct slots")
	}
	if tu == tu2 {
		t.Errorf("tuples should not be shared")
	}
}

func TestCellAndFreeIndexes(t *testing.T) {
	b := NewCodeBuilder("f", "<test>", 1)
	a := b.AddCellVar("a")
	c := b.AddCellVar("c")
	x := b.AddFreeVar("x")
	if a != 0 || c != 1 || x != 2 {
		t.Errorf("indexes = %d %d %d, want 0 1 2", a, c, x)
	}
	code := b.Build()
	if code.Flags&CoNoFree != 0 {
		t.Errorf("CoNoFree set on code with cells")
	}
	names := code.CellAndFreeNames()
	if len(names) != 3 || names[2] != "x" {
		t.Errorf("CellAndFreeNames() = %v", names)
	}
}
