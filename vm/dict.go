package vm

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// ---------------------------------------------------------------------------
// Hash keys
// ---------------------------------------------------------------------------

// tupleKey is the map key for a hashable tuple: a canonical encoding of
// its element keys.
type tupleKey struct {
	enc string
}

// hashKey maps a Value to a comparable Go key such that values which
// compare equal share a key (True, 1 and 1.0 collide, as they do in the
// interpreted language). Mutable containers are unhashable.
func hashKey(v Value) (any, error) {
	switch v := v.(type) {
	case nil, NoneType:
		return None, nil
	case Bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case Int, Str:
		return v, nil
	case BigInt:
		return hashBig(v.n), nil
	case Float:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return Int(int64(f)), nil
		}
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			n, _ := big.NewFloat(f).Int(nil)
			return hashBig(n), nil
		}
		return v, nil
	case *Tuple:
		var sb strings.Builder
		for _, item := range v.Items {
			k, err := hashKey(item)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&sb, "%T:%v;", k, k)
		}
		return tupleKey{enc: sb.String()}, nil
	case *List, *Dict, *Set, *Slice:
		return nil, Errorf(TypeErrorClass, "unhashable type: '%s'", TypeName(v))
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Dict: insertion-ordered hash map
// ---------------------------------------------------------------------------

// DictEntry is one key/value pair of a Dict.
type DictEntry struct {
	Key   Value
	Value Value
}

type dictSlot struct {
	DictEntry
	live bool
}

// Dict is a mapping that preserves insertion order. It backs dict values
// as well as every namespace (globals, locals, class and module bodies).
type Dict struct {
	slots []dictSlot
	index map[any]int
	live  int
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return d.live
}

// Get looks up key, reporting whether it is present.
func (d *Dict) Get(key Value) (Value, bool, error) {
	k, err := hashKey(key)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[k]
	if !ok {
		return nil, false, nil
	}
	return d.slots[i].Value, true, nil
}

// Set binds key to value, keeping the position of an existing key.
func (d *Dict) Set(key, value Value) error {
	k, err := hashKey(key)
	if err != nil {
		return err
	}
	d.set(k, key, value)
	return nil
}

func (d *Dict) set(k any, key, value Value) {
	if i, ok := d.index[k]; ok {
		d.slots[i].Value = value
		return
	}
	d.index[k] = len(d.slots)
	d.slots = append(d.slots, dictSlot{DictEntry: DictEntry{Key: key, Value: value}, live: true})
	d.live++
}

// Delete removes key, reporting whether it was present.
func (d *Dict) Delete(key Value) (bool, error) {
	k, err := hashKey(key)
	if err != nil {
		return false, err
	}
	return d.delete(k), nil
}

func (d *Dict) delete(k any) bool {
	i, ok := d.index[k]
	if !ok {
		return false
	}
	delete(d.index, k)
	d.slots[i] = dictSlot{}
	d.live--
	if len(d.slots) > 16 && d.live < len(d.slots)/2 {
		d.compact()
	}
	return true
}

func (d *Dict) compact() {
	slots := make([]dictSlot, 0, d.live)
	for _, s := range d.slots {
		if s.live {
			k, _ := hashKey(s.Key)
			d.index[k] = len(slots)
			slots = append(slots, s)
		}
	}
	d.slots = slots
}

// Clear removes every entry.
func (d *Dict) Clear() {
	d.slots = nil
	d.index = make(map[any]int)
	d.live = 0
}

// GetStr looks up a string key. Namespaces use this on every name access.
func (d *Dict) GetStr(name string) (Value, bool) {
	i, ok := d.index[Str(name)]
	if !ok {
		return nil, false
	}
	return d.slots[i].Value, true
}

// SetStr binds a string key.
func (d *Dict) SetStr(name string, value Value) {
	d.set(Str(name), Str(name), value)
}

// DeleteStr removes a string key, reporting whether it was present.
func (d *Dict) DeleteStr(name string) bool {
	return d.delete(Str(name))
}

// Items returns a snapshot of the entries in insertion order.
func (d *Dict) Items() []DictEntry {
	out := make([]DictEntry, 0, d.live)
	for _, s := range d.slots {
		if s.live {
			out = append(out, s.DictEntry)
		}
	}
	return out
}

// Keys returns a snapshot of the keys in insertion order.
func (d *Dict) Keys() []Value {
	out := make([]Value, 0, d.live)
	for _, s := range d.slots {
		if s.live {
			out = append(out, s.Key)
		}
	}
	return out
}

// Values returns a snapshot of the values in insertion order.
func (d *Dict) Values() []Value {
	out := make([]Value, 0, d.live)
	for _, s := range d.slots {
		if s.live {
			out = append(out, s.Value)
		}
	}
	return out
}

// Copy returns a shallow copy.
func (d *Dict) Copy() *Dict {
	c := NewDict()
	for _, s := range d.slots {
		if s.live {
			k, _ := hashKey(s.Key)
			c.set(k, s.Key, s.Value)
		}
	}
	return c
}

// Update copies every entry of other into d.
func (d *Dict) Update(other *Dict) {
	for _, s := range other.slots {
		if s.live {
			k, _ := hashKey(s.Key)
			d.set(k, s.Key, s.Value)
		}
	}
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

// Set is an unordered collection of hashable values. Iteration follows
// insertion order.
type Set struct {
	d *Dict
}

// NewSet creates a set holding items.
func NewSet(items ...Value) (*Set, error) {
	s := &Set{d: NewDict()}
	for _, item := range items {
		if err := s.Add(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of members.
func (s *Set) Len() int {
	return s.d.Len()
}

// Add inserts v.
func (s *Set) Add(v Value) error {
	return s.d.Set(v, None)
}

// Contains reports membership of v.
func (s *Set) Contains(v Value) (bool, error) {
	_, ok, err := s.d.Get(v)
	return ok, err
}

// Discard removes v, reporting whether it was present.
func (s *Set) Discard(v Value) (bool, error) {
	return s.d.Delete(v)
}

// Items returns a snapshot of the members.
func (s *Set) Items() []Value {
	return s.d.Keys()
}

// Copy returns a shallow copy.
func (s *Set) Copy() *Set {
	return &Set{d: s.d.Copy()}
}
