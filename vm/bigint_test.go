package vm

import (
	"math"
	"math/big"
	"testing"
)

// ---------------------------------------------------------------------------
// Arbitrary precision
// ---------------------------------------------------------------------------

func TestIntPromotion(t *testing.T) {
	vm := NewVM()
	huge, _ := new(big.Int).SetString("100000000000000000000", 10)
	tests := []struct {
		name string
		op   binOp
		a, b Value
		want string
	}{
		{"add", opAdd, Int(math.MaxInt64), Int(1), "9223372036854775808"},
		{"sub", opSub, Int(math.MinInt64), Int(1), "-9223372036854775809"},
		{"mul", opMul, Int(math.MaxInt64 / 2), Int(3), "13835058055282163709"},
		{"pow", opPow, Int(10), Int(20), "100000000000000000000"},
		{"shift", opLshift, Int(1), Int(64), "18446744073709551616"},
		{"floor divide min by -1", opFloorDiv, Int(math.MinInt64), Int(-1), "9223372036854775808"},
		{"back to int", opSub, NewBigInt(huge), NewBigInt(huge), "0"},
		{"floor divide", opFloorDiv, NewBigInt(huge), Int(-3), "-33333333333333333334"},
		{"mod takes divisor sign", opMod, NewBigInt(huge), Int(-3), "-2"},
		{"true divide", opTrueDiv, NewBigInt(huge), Int(4), "2.5e+19"},
		{"mixed float", opAdd, NewBigInt(huge), Float(0.5), "1e+20"},
		{"right shift", opRshift, NewBigInt(huge), Int(200), "0"},
		{"negative power is float", opPow, NewBigInt(huge), Int(-1), "1e-20"},
		{"minus one to huge power", opPow, Int(-1), NewBigInt(huge), "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.binaryOp(tt.op, tt.a, tt.b, false)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if Repr(got) != tt.want {
				t.Errorf("result = %s, want %s", Repr(got), tt.want)
			}
		})
	}
}

func TestNewBigIntNormalizes(t *testing.T) {
	if v := NewBigInt(big.NewInt(7)); v != Int(7) {
		t.Errorf("NewBigInt(7) = %#v, want Int(7)", v)
	}
	if _, ok := NewBigInt(new(big.Int).Lsh(big.NewInt(1), 70)).(BigInt); !ok {
		t.Error("2**70 should be a BigInt")
	}
}

func TestBigIntCompareAndHash(t *testing.T) {
	vm := NewVM()
	a, err := vm.binaryOp(opPow, Int(2), Int(70), false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := vm.binaryOp(opLshift, Int(1), Int(70), false)
	if err != nil {
		t.Fatal(err)
	}
	if TypeName(a) != "int" {
		t.Errorf("type = %s, want int", TypeName(a))
	}
	if !Equal(a, b) || !Equal(a, Float(math.Pow(2, 70))) {
		t.Error("2**70 should equal 1<<70 and 2.0**70")
	}
	if lt, _ := orderCompare(CmpLT, Int(math.MaxInt64), a); !lt {
		t.Error("MaxInt64 < 2**70 should hold")
	}
	if gt, _ := orderCompare(CmpGT, Float(1e30), a); !gt {
		t.Error("1e30 > 2**70 should hold")
	}

	d := NewDict()
	if err := d.Set(a, Str("big")); err != nil {
		t.Fatal(err)
	}
	for _, key := range []Value{b, Float(math.Pow(2, 70))} {
		if v, ok, _ := d.Get(key); !ok || v != Str("big") {
			t.Errorf("d[%s] = %v, %v", Repr(key), v, ok)
		}
	}
}

func TestFactorialBeyondInt64(t *testing.T) {
	vm := NewVM()
	m := NewCodeBuilder("<module>", "<test>", 1)
	defineFunction(m, factCode())
	m.LoadName("fact").LoadConst(Int(25)).Call(1).Return()

	if got := Repr(runModule(t, vm, m)); got != "15511210043330985984000000" {
		t.Errorf("fact(25) = %s", got)
	}
}

func TestFormatBigInt(t *testing.T) {
	vm := NewVM()
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	got, err := vm.binaryOp(opMod, Str("%+d"), NewBigInt(huge), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != Str("+123456789012345678901234567890") {
		t.Errorf("'%%+d' %% big = %s", Repr(got))
	}
}
