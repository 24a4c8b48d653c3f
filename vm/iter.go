package vm

// Iterator is a value that FOR_ITER can advance. Generators are
// iterators; the built-in containers produce the iterators below.
type Iterator interface {
	iterNext() (Value, bool, error)
}

type listIterator struct {
	list *List
	i    int
}

func (it *listIterator) iterNext() (Value, bool, error) {
	if it.i >= len(it.list.Items) {
		return nil, false, nil
	}
	v := it.list.Items[it.i]
	it.i++
	return v, true, nil
}

type sliceIterator struct {
	items []Value
	i     int
}

func (it *sliceIterator) iterNext() (Value, bool, error) {
	if it.i >= len(it.items) {
		return nil, false, nil
	}
	v := it.items[it.i]
	it.i++
	return v, true, nil
}

type rangeIterator struct {
	r *Range
	i int64
	n int64
}

func (it *rangeIterator) iterNext() (Value, bool, error) {
	if it.i >= it.n {
		return nil, false, nil
	}
	v := Int(it.r.At(it.i))
	it.i++
	return v, true, nil
}

// keysIterator walks a dict or set snapshot and fails if the container
// changes size underneath it.
type keysIterator struct {
	keys []Value
	size func() int
	what string
	n    int
	i    int
}

func (it *keysIterator) iterNext() (Value, bool, error) {
	if it.size() != it.n {
		return nil, false, Errorf(RuntimeErrorClass, "%s changed size during iteration", it.what)
	}
	if it.i >= len(it.keys) {
		return nil, false, nil
	}
	v := it.keys[it.i]
	it.i++
	return v, true, nil
}

// funcIterator adapts a Go closure; builtins such as enumerate and zip
// use it.
type funcIterator struct {
	next func() (Value, bool, error)
	done bool
}

func (it *funcIterator) iterNext() (Value, bool, error) {
	if it.done {
		return nil, false, nil
	}
	v, ok, err := it.next()
	if !ok || err != nil {
		it.done = true
	}
	return v, ok, err
}

// Iter returns an iterator over v, as iter() does.
func (vm *VM) Iter(v Value) (Value, error) {
	switch o := v.(type) {
	case Iterator:
		return o, nil
	case *List:
		return &listIterator{list: o}, nil
	case *Tuple:
		return &sliceIterator{items: o.Items}, nil
	case Str:
		runes := []rune(string(o))
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = Str(r)
		}
		return &sliceIterator{items: items}, nil
	case *Range:
		return &rangeIterator{r: o, n: o.Len()}, nil
	case *Dict:
		return &keysIterator{keys: o.Keys(), size: o.Len, what: "dictionary", n: o.Len()}, nil
	case *Set:
		return &keysIterator{keys: o.Items(), size: o.Len, what: "set", n: o.Len()}, nil
	}
	return nil, Errorf(TypeErrorClass, "'%s' object is not iterable", TypeName(v))
}

// Next advances an iterator obtained from Iter, reporting false once it
// is exhausted.
func (vm *VM) Next(it Value) (Value, bool, error) {
	i, ok := it.(Iterator)
	if !ok {
		return nil, false, Errorf(TypeErrorClass, "'%s' object is not an iterator", TypeName(it))
	}
	return i.iterNext()
}

// collect drains an iterable into a fresh slice.
func (vm *VM) collect(v Value) ([]Value, error) {
	switch o := v.(type) {
	case *List:
		return append([]Value(nil), o.Items...), nil
	case *Tuple:
		return append([]Value(nil), o.Items...), nil
	}
	it, err := vm.Iter(v)
	if err != nil {
		return nil, err
	}
	var out []Value
	for {
		item, ok, err := vm.Next(it)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// unpack splits an iterable into exactly n values.
func (vm *VM) unpack(v Value, n int) ([]Value, error) {
	var items []Value
	if seq, ok := sequenceItems(v); ok {
		items = seq
	} else {
		it, err := vm.Iter(v)
		if err != nil {
			return nil, Errorf(TypeErrorClass, "cannot unpack non-iterable %s object", TypeName(v))
		}
		for len(items) <= n {
			item, ok, err := vm.Next(it)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			items = append(items, item)
		}
	}
	switch {
	case len(items) < n:
		return nil, Errorf(ValueErrorClass, "not enough values to unpack (expected %d, got %d)", n, len(items))
	case len(items) > n:
		return nil, Errorf(ValueErrorClass, "too many values to unpack (expected %d)", n)
	}
	return items, nil
}
