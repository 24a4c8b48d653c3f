// Package wire encodes compiled units as canonical CBOR. A unit file
// (extension .byc) holds one envelope wrapping a top-level code object;
// nested code objects travel as constants.
package wire

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/chazu/byterun/vm"
	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a unit file.
const Magic = "BYRN"

// Version is the envelope version this package reads and writes.
const Version = 1

// Ext is the file extension of unit files.
const Ext = ".byc"

var (
	ErrBadMagic         = errors.New("not a byterun unit")
	ErrBadVersion       = errors.New("unsupported unit version")
	ErrUnsupportedConst = errors.New("constant cannot be encoded")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// ConstKind tags an encoded constant.
type ConstKind uint8

const (
	ConstNone  ConstKind = 0
	ConstBool  ConstKind = 1
	ConstInt   ConstKind = 2
	ConstFloat ConstKind = 3
	ConstStr   ConstKind = 4
	ConstTuple ConstKind = 5
	ConstCode  ConstKind = 6
	ConstBig   ConstKind = 7 // int outside the int64 range, as a CBOR bignum
)

type envelope struct {
	Magic   string      `cbor:"1,keyasint"`
	Version uint        `cbor:"2,keyasint"`
	Code    *codeRecord `cbor:"3,keyasint"`
}

type codeRecord struct {
	Name           string        `cbor:"1,keyasint"`
	Filename       string        `cbor:"2,keyasint"`
	ArgCount       int           `cbor:"3,keyasint,omitempty"`
	KwOnlyArgCount int           `cbor:"4,keyasint,omitempty"`
	Flags          uint32        `cbor:"5,keyasint"`
	Bytecode       []byte        `cbor:"6,keyasint"`
	Consts         []constRecord `cbor:"7,keyasint,omitempty"`
	Names          []string      `cbor:"8,keyasint,omitempty"`
	VarNames       []string      `cbor:"9,keyasint,omitempty"`
	CellVars       []string      `cbor:"10,keyasint,omitempty"`
	FreeVars       []string      `cbor:"11,keyasint,omitempty"`
	FirstLineNo    int           `cbor:"12,keyasint"`
	LineTable      [][2]int      `cbor:"13,keyasint,omitempty"`
}

type constRecord struct {
	Kind  ConstKind     `cbor:"1,keyasint"`
	Bool  bool          `cbor:"2,keyasint,omitempty"`
	Int   int64         `cbor:"3,keyasint,omitempty"`
	Float float64       `cbor:"4,keyasint,omitempty"`
	Str   string        `cbor:"5,keyasint,omitempty"`
	Items []constRecord `cbor:"6,keyasint,omitempty"`
	Code  *codeRecord   `cbor:"7,keyasint,omitempty"`
	Big   *big.Int      `cbor:"8,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Marshal serializes code as a unit envelope.
func Marshal(code *vm.Code) ([]byte, error) {
	rec, err := encodeCode(code)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&envelope{Magic: Magic, Version: Version, Code: rec})
}

// Hash returns the SHA-256 of the canonical encoding of code. Equal code
// objects hash equally.
func Hash(code *vm.Code) ([32]byte, error) {
	data, err := Marshal(code)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

func encodeCode(c *vm.Code) (*codeRecord, error) {
	rec := &codeRecord{
		Name:           c.Name,
		Filename:       c.Filename,
		ArgCount:       c.ArgCount,
		KwOnlyArgCount: c.KwOnlyArgCount,
		Flags:          uint32(c.Flags),
		Bytecode:       c.Bytecode,
		Names:          c.Names,
		VarNames:       c.VarNames,
		CellVars:       c.CellVars,
		FreeVars:       c.FreeVars,
		FirstLineNo:    c.FirstLineNo,
	}
	for i, v := range c.Consts {
		cr, err := encodeConst(v)
		if err != nil {
			return nil, fmt.Errorf("%s const %d: %w", c.Name, i, err)
		}
		rec.Consts = append(rec.Consts, cr)
	}
	for _, e := range c.LineTable {
		rec.LineTable = append(rec.LineTable, [2]int{e.ByteDelta, e.LineDelta})
	}
	return rec, nil
}

func encodeConst(v vm.Value) (constRecord, error) {
	switch v := v.(type) {
	case nil, vm.NoneType:
		return constRecord{Kind: ConstNone}, nil
	case vm.Bool:
		return constRecord{Kind: ConstBool, Bool: bool(v)}, nil
	case vm.Int:
		return constRecord{Kind: ConstInt, Int: int64(v)}, nil
	case vm.BigInt:
		return constRecord{Kind: ConstBig, Big: v.Big()}, nil
	case vm.Float:
		return constRecord{Kind: ConstFloat, Float: float64(v)}, nil
	case vm.Str:
		return constRecord{Kind: ConstStr, Str: string(v)}, nil
	case *vm.Tuple:
		rec := constRecord{Kind: ConstTuple, Items: make([]constRecord, 0, len(v.Items))}
		for _, item := range v.Items {
			ir, err := encodeConst(item)
			if err != nil {
				return constRecord{}, err
			}
			rec.Items = append(rec.Items, ir)
		}
		return rec, nil
	case *vm.Code:
		cr, err := encodeCode(v)
		if err != nil {
			return constRecord{}, err
		}
		return constRecord{Kind: ConstCode, Code: cr}, nil
	}
	return constRecord{}, fmt.Errorf("%w: %s", ErrUnsupportedConst, vm.TypeName(v))
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Unmarshal decodes a unit envelope into its top-level code object.
func Unmarshal(data []byte) (*vm.Code, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: unmarshal unit: %w", err)
	}
	if env.Magic != Magic {
		return nil, fmt.Errorf("wire: %w (magic %q)", ErrBadMagic, env.Magic)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("wire: %w: %d", ErrBadVersion, env.Version)
	}
	if env.Code == nil {
		return nil, fmt.Errorf("wire: unit has no code")
	}
	return decodeCode(env.Code)
}

func decodeCode(rec *codeRecord) (*vm.Code, error) {
	c := &vm.Code{
		Name:           rec.Name,
		Filename:       rec.Filename,
		ArgCount:       rec.ArgCount,
		KwOnlyArgCount: rec.KwOnlyArgCount,
		Flags:          vm.CodeFlags(rec.Flags),
		Bytecode:       rec.Bytecode,
		Names:          rec.Names,
		VarNames:       rec.VarNames,
		CellVars:       rec.CellVars,
		FreeVars:       rec.FreeVars,
		FirstLineNo:    rec.FirstLineNo,
	}
	c.Consts = make([]vm.Value, 0, len(rec.Consts))
	for i := range rec.Consts {
		v, err := decodeConst(&rec.Consts[i])
		if err != nil {
			return nil, fmt.Errorf("wire: %s const %d: %w", rec.Name, i, err)
		}
		c.Consts = append(c.Consts, v)
	}
	for _, e := range rec.LineTable {
		c.LineTable = append(c.LineTable, vm.LineEntry{ByteDelta: e[0], LineDelta: e[1]})
	}
	return c, nil
}

func decodeConst(rec *constRecord) (vm.Value, error) {
	switch rec.Kind {
	case ConstNone:
		return vm.None, nil
	case ConstBool:
		return vm.Bool(rec.Bool), nil
	case ConstInt:
		return vm.Int(rec.Int), nil
	case ConstBig:
		if rec.Big == nil {
			return nil, fmt.Errorf("big int constant without a value")
		}
		return vm.NewBigInt(rec.Big), nil
	case ConstFloat:
		return vm.Float(rec.Float), nil
	case ConstStr:
		return vm.Str(rec.Str), nil
	case ConstTuple:
		items := make([]vm.Value, 0, len(rec.Items))
		for i := range rec.Items {
			v, err := decodeConst(&rec.Items[i])
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return vm.NewTuple(items...), nil
	case ConstCode:
		if rec.Code == nil {
			return nil, fmt.Errorf("code constant without a body")
		}
		return decodeCode(rec.Code)
	}
	return nil, fmt.Errorf("unknown constant kind %d", rec.Kind)
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// WriteFile writes code to path as a unit file.
func WriteFile(path string, code *vm.Code) error {
	data, err := Marshal(code)
	if err != nil {
		return fmt.Errorf("wire: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("wire: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes the unit file at path.
func ReadFile(path string) (*vm.Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wire: read %s: %w", path, err)
	}
	code, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}
