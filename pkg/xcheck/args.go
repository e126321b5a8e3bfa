package xcheck

import (
	"fmt"
	"slices"
	"strings"
)

// ArgKind discriminates the three argument shapes.
type ArgKind int

const (
	ArgNothing ArgKind = iota // bare flag: `no`
	ArgStr                    // string value: `tag = "X"`
	ArgList                   // nested list: `check_value(tag = "X")`
)

func (k ArgKind) String() string {
	switch k {
	case ArgNothing:
		return "flag"
	case ArgStr:
		return "string"
	case ArgList:
		return "list"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Arg is a single configuration item. Only the field matching Kind is
// meaningful.
type Arg struct {
	Kind ArgKind
	str  string
	list ArgMap
	key  string
}

// ArgMap maps argument names to their values. Lookups are by exact name;
// iteration order carries no meaning.
type ArgMap map[string]Arg

// Flag builds a bare flag argument.
func Flag() Arg { return Arg{Kind: ArgNothing} }

// Str builds a string argument.
func Str(s string) Arg { return Arg{Kind: ArgStr, str: s} }

// List builds a nested list argument.
func List(m ArgMap) Arg { return Arg{Kind: ArgList, list: m} }

// Str returns the string value or a ConfigShapeError when the argument is not
// a string.
func (a Arg) Str() (string, error) {
	if a.Kind != ArgStr {
		return "", &ConfigShapeError{Key: a.key, Want: ArgStr.String(), Got: a.Kind.String()}
	}
	return a.str, nil
}

// List returns the nested map or a ConfigShapeError when the argument is not a
// list.
func (a Arg) List() (ArgMap, error) {
	if a.Kind != ArgList {
		return nil, &ConfigShapeError{Key: a.key, Want: ArgList.String(), Got: a.Kind.String()}
	}
	if a.list == nil {
		return ArgMap{}, nil
	}
	return a.list, nil
}

// Has reports whether name is present.
func (m ArgMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Get returns the argument stored under name. The returned Arg remembers its
// name so shape errors can report it.
func (m ArgMap) Get(name string) (Arg, bool) {
	a, ok := m[name]
	if !ok {
		return Arg{}, false
	}
	a.key = name
	return a, true
}

// StrOr returns the string stored under name, or def when absent. A present
// argument of another shape is an error.
func (m ArgMap) StrOr(name, def string) (string, error) {
	a, ok := m.Get(name)
	if !ok {
		return def, nil
	}
	return a.Str()
}

// String renders the map back into annotation syntax with keys sorted, which
// keeps diagnostics stable.
func (m ArgMap) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		a := m[k]
		switch a.Kind {
		case ArgStr:
			fmt.Fprintf(&b, " = %q", a.str)
		case ArgList:
			b.WriteString("(")
			b.WriteString(a.list.String())
			b.WriteString(")")
		}
	}
	return b.String()
}
