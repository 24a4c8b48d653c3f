package vm

import (
	"fmt"
	"strings"
)

// bind matches call arguments against the function's parameters and
// returns the initial locals of the call.
//
// The first ArgCount names in VarNames are the positional parameters,
// followed by KwOnlyArgCount keyword-only parameters, then *args and
// **kwargs when the code declares them.
func (fn *Function) bind(args []Value, kwargs *Dict) (*Dict, error) {
	co := fn.Code
	nPos, nKw := co.ArgCount, co.KwOnlyArgCount
	total := nPos + nKw
	hasVarArgs := co.Flags&CoVarArgs != 0
	hasVarKw := co.Flags&CoVarKeywords != 0

	need := total
	if hasVarArgs {
		need++
	}
	if hasVarKw {
		need++
	}
	if len(co.VarNames) < need {
		return nil, Errorf(SystemErrorClass, "%s() declares %d parameters but names only %d", fn.Name, need, len(co.VarNames))
	}
	names := co.VarNames

	vals := make([]Value, total)
	bound := make([]bool, total)

	n := min(len(args), nPos)
	for i := 0; i < n; i++ {
		vals[i] = args[i]
		bound[i] = true
	}

	var varArgs *Tuple
	if hasVarArgs {
		if len(args) > nPos {
			varArgs = NewTuple(append([]Value(nil), args[nPos:]...)...)
		} else {
			varArgs = EmptyTuple
		}
	}

	var varKw *Dict
	if hasVarKw {
		varKw = NewDict()
	}
	if kwargs != nil {
		for _, e := range kwargs.Items() {
			key, ok := e.Key.(Str)
			if !ok {
				return nil, Errorf(TypeErrorClass, "%s() keywords must be strings", fn.Name)
			}
			i := indexOfName(names[:total], string(key))
			switch {
			case i >= 0 && bound[i]:
				return nil, Errorf(TypeErrorClass, "%s() got multiple values for argument '%s'", fn.Name, key)
			case i >= 0:
				vals[i] = e.Value
				bound[i] = true
			case varKw != nil:
				varKw.SetStr(string(key), e.Value)
			default:
				return nil, Errorf(TypeErrorClass, "%s() got an unexpected keyword argument '%s'", fn.Name, key)
			}
		}
	}

	if !hasVarArgs && len(args) > nPos {
		return nil, tooManyPositional(fn, len(args))
	}

	firstDefault := nPos - len(fn.Defaults)
	var missing []string
	for i := 0; i < nPos; i++ {
		if bound[i] {
			continue
		}
		if i >= firstDefault {
			vals[i] = fn.Defaults[i-firstDefault]
			continue
		}
		missing = append(missing, names[i])
	}
	if len(missing) > 0 {
		return nil, missingArguments(fn, "positional", missing)
	}

	for i := nPos; i < total; i++ {
		if bound[i] {
			continue
		}
		if fn.KwDefaults != nil {
			if v, ok := fn.KwDefaults.GetStr(names[i]); ok {
				vals[i] = v
				continue
			}
		}
		missing = append(missing, names[i])
	}
	if len(missing) > 0 {
		return nil, missingArguments(fn, "keyword-only", missing)
	}

	locals := NewDict()
	for i := 0; i < total; i++ {
		locals.SetStr(names[i], vals[i])
	}
	next := total
	if hasVarArgs {
		locals.SetStr(names[next], varArgs)
		next++
	}
	if hasVarKw {
		locals.SetStr(names[next], varKw)
	}
	return locals, nil
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func tooManyPositional(fn *Function, given int) *Exception {
	nPos := fn.Code.ArgCount
	takes := plural(nPos, "positional argument")
	if len(fn.Defaults) > 0 {
		takes = fmt.Sprintf("from %d to %d positional arguments", nPos-len(fn.Defaults), nPos)
	}
	verb := "were"
	if given == 1 {
		verb = "was"
	}
	return Errorf(TypeErrorClass, "%s() takes %s but %d %s given", fn.Name, takes, given, verb)
}

func missingArguments(fn *Function, kind string, names []string) *Exception {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	var list string
	switch len(quoted) {
	case 1:
		list = quoted[0]
	case 2:
		list = quoted[0] + " and " + quoted[1]
	default:
		list = strings.Join(quoted[:len(quoted)-1], ", ") + ", and " + quoted[len(quoted)-1]
	}
	return Errorf(TypeErrorClass, "%s() missing %s: %s",
		fn.Name, plural(len(names), "required "+kind+" argument"), list)
}
