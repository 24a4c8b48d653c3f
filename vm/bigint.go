package vm

import (
	"math"
	"math/big"
)

// maxIntBits bounds the width of an int result.
const maxIntBits = 1 << 20

// BigInt is an int outside the int64 range. Arithmetic that lands back
// inside the range returns an Int, so a BigInt never holds a small value.
type BigInt struct {
	n *big.Int
}

// NewBigInt returns n as an int value: an Int when it fits in 64 bits.
func NewBigInt(n *big.Int) Value {
	if n.IsInt64() {
		return Int(n.Int64())
	}
	return BigInt{new(big.Int).Set(n)}
}

// Big returns a copy of the integer.
func (b BigInt) Big() *big.Int { return new(big.Int).Set(b.n) }

func (b BigInt) String() string { return b.n.String() }

// normInt wraps a freshly computed result, which the caller must not reuse.
func normInt(n *big.Int) (Value, error) {
	if n.IsInt64() {
		return Int(n.Int64()), nil
	}
	if n.BitLen() > maxIntBits {
		return nil, overflowError()
	}
	return BigInt{n}, nil
}

// asBig extracts an integer of any width from an Int, Bool or BigInt.
func asBig(v Value) (*big.Int, bool) {
	if b, ok := v.(BigInt); ok {
		return b.n, true
	}
	if n, ok := AsInt(v); ok {
		return big.NewInt(n), true
	}
	return nil, false
}

func bigToFloat(n *big.Int) float64 {
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}

// cmpBig orders a and b when both are ints and at least one is a BigInt.
func cmpBig(a, b Value) (int, bool) {
	_, aBig := a.(BigInt)
	_, bBig := b.(BigInt)
	if !aBig && !bBig {
		return 0, false
	}
	x, ok := asBig(a)
	if !ok {
		return 0, false
	}
	y, ok := asBig(b)
	if !ok {
		return 0, false
	}
	return x.Cmp(y), true
}

// bigIntOp applies op to integers of any width.
func bigIntOp(op binOp, x, y *big.Int) (Value, error) {
	z := new(big.Int)
	switch op {
	case opAdd:
		z.Add(x, y)
	case opSub:
		z.Sub(x, y)
	case opMul:
		if x.BitLen()+y.BitLen() > maxIntBits+1 {
			return nil, overflowError()
		}
		z.Mul(x, y)
	case opTrueDiv:
		if y.Sign() == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "division by zero")
		}
		f, _ := new(big.Rat).SetFrac(x, y).Float64()
		if math.IsInf(f, 0) {
			return nil, Errorf(OverflowErrorClass, "integer division result too large for a float")
		}
		return Float(f), nil
	case opFloorDiv, opMod:
		if y.Sign() == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		q, r := new(big.Int).QuoRem(x, y, new(big.Int))
		if r.Sign() != 0 && (r.Sign() < 0) != (y.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
			r.Add(r, y)
		}
		if op == opMod {
			return normInt(r)
		}
		return normInt(q)
	case opPow:
		return bigPow(x, y)
	case opLshift:
		if y.Sign() < 0 {
			return nil, Errorf(ValueErrorClass, "negative shift count")
		}
		if x.Sign() == 0 {
			return Int(0), nil
		}
		if !y.IsInt64() || y.Int64() > maxIntBits {
			return nil, overflowError()
		}
		z.Lsh(x, uint(y.Int64()))
	case opRshift:
		if y.Sign() < 0 {
			return nil, Errorf(ValueErrorClass, "negative shift count")
		}
		if !y.IsInt64() || y.Int64() > int64(x.BitLen()) {
			if x.Sign() < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		z.Rsh(x, uint(y.Int64()))
	case opAnd:
		z.And(x, y)
	case opXor:
		z.Xor(x, y)
	case opOr:
		z.Or(x, y)
	default:
		return nil, Errorf(SystemErrorClass, "bad integer operator %d", op)
	}
	return normInt(z)
}

func bigPow(x, y *big.Int) (Value, error) {
	if y.Sign() < 0 {
		if x.Sign() == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "0.0 cannot be raised to a negative power")
		}
		return Float(math.Pow(bigToFloat(x), bigToFloat(y))), nil
	}
	// 0, 1 and -1 stay small for any exponent.
	if x.BitLen() <= 1 {
		switch {
		case x.Sign() == 0 && y.Sign() == 0:
			return Int(1), nil
		case x.Sign() == 0:
			return Int(0), nil
		case x.Sign() < 0 && y.Bit(0) == 1:
			return Int(-1), nil
		}
		return Int(1), nil
	}
	if !y.IsInt64() || y.Int64() > maxIntBits || int64(x.BitLen()-1)*y.Int64() > maxIntBits {
		return nil, overflowError()
	}
	return normInt(new(big.Int).Exp(x, y, nil))
}

func hashBig(n *big.Int) any {
	return bigKey(n.String())
}

// bigKey is the dict key of an int outside the int64 range.
type bigKey string
