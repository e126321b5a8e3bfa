package xcheck

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"sync"
)

// ErrRegistered is returned when a name is registered twice in one registry.
var ErrRegistered = errors.New("name already registered")

// Registry binds the names used in annotations (hashers, filters, hash
// functions) to implementations, and holds annotations for types that cannot
// carry struct tags. Register everything before hashing begins; compiled
// plans capture the bindings that were present at compile time.
type Registry struct {
	mu         sync.RWMutex
	hashers    map[string]HasherKind
	filters    map[string]*filterFunc
	fieldFns   map[string]*fieldFunc
	aggFns     map[string]*aggregateFunc
	typeNotes  map[reflect.Type]string
	fieldNotes map[reflect.Type]map[string]string
	typeNames  map[reflect.Type]string
}

type filterFunc struct {
	name  string
	out   func(in reflect.Type) (reflect.Type, error)
	apply func(v reflect.Value) reflect.Value
}

type fieldFunc struct {
	name string
	in   reflect.Type
	call func(h Hasher, v reflect.Value) error
}

type aggregateFunc struct {
	name string
	in   reflect.Type
	call func(sc Scope, v reflect.Value, depth int) (uint64, error)
}

// NewRegistry returns a registry holding the built-in hashers (xxh3, fnv1a,
// blake2b, blake3) and filters (*, deref, len, is_nil).
func NewRegistry() *Registry {
	r := &Registry{
		hashers:    make(map[string]HasherKind),
		filters:    make(map[string]*filterFunc),
		fieldFns:   make(map[string]*fieldFunc),
		aggFns:     make(map[string]*aggregateFunc),
		typeNotes:  make(map[reflect.Type]string),
		fieldNotes: make(map[reflect.Type]map[string]string),
		typeNames:  make(map[reflect.Type]string),
	}
	for _, k := range []HasherKind{XXH3, FNV1a, Blake2b, Blake3} {
		r.hashers[k.Name] = k
	}
	for _, f := range builtinFilters() {
		r.filters[f.name] = f
	}
	return r
}

// DefaultRegistry is used by engines created without WithRegistry.
var DefaultRegistry = NewRegistry()

// RegisterHasher adds an accumulator kind under k.Name.
func (r *Registry) RegisterHasher(k HasherKind) error {
	if k.Name == "" || k.New == nil {
		return fmt.Errorf("register hasher: name and constructor are required")
	}
	if k.Name == DefaultAHasher || k.Name == DefaultSHasher {
		return fmt.Errorf("register hasher %q: name is reserved", k.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hashers[k.Name]; ok {
		return fmt.Errorf("register hasher %q: %w", k.Name, ErrRegistered)
	}
	r.hashers[k.Name] = k
	return nil
}

// Hasher looks up an accumulator kind by name.
func (r *Registry) Hasher(name string) (HasherKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.hashers[name]
	return k, ok
}

// Channels resolves a pair of hasher names into the A and S channel kinds.
func (r *Registry) Channels(a, s string) (HasherKind, HasherKind, error) {
	ak, ok := r.Hasher(a)
	if !ok {
		return HasherKind{}, HasherKind{}, &UnknownFunctionError{Kind: "hasher", Name: a}
	}
	sk, ok := r.Hasher(s)
	if !ok {
		return HasherKind{}, HasherKind{}, &UnknownFunctionError{Kind: "hasher", Name: s}
	}
	return ak, sk, nil
}

// HasherNames lists the registered accumulator kinds in sorted order.
func (r *Registry) HasherNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.hashers))
}

// Annotate sets the type-level annotation for t. It replaces any annotation
// carried by a blank field of t.
func (r *Registry) Annotate(t reflect.Type, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeNotes[t] = text
}

// AnnotateField sets the annotation for the named field of t. It replaces
// the field's xcheck struct tag.
func (r *Registry) AnnotateField(t reflect.Type, field, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.fieldNotes[t]
	if m == nil {
		m = make(map[string]string)
		r.fieldNotes[t] = m
	}
	m[field] = text
}

// NameType sets the name reported for t in observation paths and
// descriptions. Types built at runtime use it since their String form is a
// struct literal.
func (r *Registry) NameType(t reflect.Type, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeNames[t] = name
}

// TypeName returns the name set with NameType, or t.String(). Unnamed
// pointer, slice, array and map types are spelled using the names of their
// element types.
func (r *Registry) TypeName(t reflect.Type) string {
	r.mu.RLock()
	name, ok := r.typeNames[t]
	r.mu.RUnlock()
	if ok {
		return name
	}
	if t.Name() != "" {
		return t.String()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + r.TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + r.TypeName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + r.TypeName(t.Elem())
	case reflect.Map:
		return "map[" + r.TypeName(t.Key()) + "]" + r.TypeName(t.Elem())
	}
	return t.String()
}

func (r *Registry) typeAnnotation(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.typeNotes[t]
	return s, ok
}

func (r *Registry) fieldAnnotation(t reflect.Type, field string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.fieldNotes[t][field]
	return s, ok
}

func (r *Registry) filter(name string) (*filterFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[name]
	return f, ok
}

func (r *Registry) fieldFunc(name string) (*fieldFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fieldFns[name]
	return f, ok
}

func (r *Registry) aggregateFunc(name string) (*aggregateFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.aggFns[name]
	return f, ok
}

// RegisterFilter registers a named unary transform applied to a field before
// it is hashed by check_value or check_raw.
func RegisterFilter[In, Out any](r *Registry, name string, fn func(In) Out) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register filter: name and function are required")
	}
	inT := reflect.TypeFor[In]()
	outT := reflect.TypeFor[Out]()
	f := &filterFunc{
		name: name,
		out: func(t reflect.Type) (reflect.Type, error) {
			if !t.AssignableTo(inT) {
				return nil, &ConfigShapeError{Key: name, Want: inT.String(), Got: t.String()}
			}
			return outT, nil
		},
		apply: func(v reflect.Value) reflect.Value {
			var in In
			reflect.ValueOf(&in).Elem().Set(v)
			out := fn(in)
			return reflect.ValueOf(&out).Elem()
		},
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.filters[name]; ok {
		return fmt.Errorf("register filter %q: %w", name, ErrRegistered)
	}
	r.filters[name] = f
	return nil
}

// RegisterFieldHash registers a function used by custom_hash on a field. The
// function appends whatever it wants to the accumulator of the enclosing
// aggregate.
func RegisterFieldHash[T any](r *Registry, name string, fn func(h Hasher, v T) error) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register field hash: name and function are required")
	}
	f := &fieldFunc{
		name: name,
		in:   reflect.TypeFor[T](),
		call: func(h Hasher, v reflect.Value) error {
			var in T
			reflect.ValueOf(&in).Elem().Set(v)
			return fn(h, in)
		},
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fieldFns[name]; ok {
		return fmt.Errorf("register field hash %q: %w", name, ErrRegistered)
	}
	r.fieldFns[name] = f
	return nil
}

// RegisterAggregateHash registers a function used by custom_hash on a type.
// It replaces field-by-field hashing for that type entirely.
func RegisterAggregateHash[T any](r *Registry, name string, fn func(sc Scope, v T, depth int) (uint64, error)) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register aggregate hash: name and function are required")
	}
	f := &aggregateFunc{
		name: name,
		in:   reflect.TypeFor[T](),
		call: func(sc Scope, v reflect.Value, depth int) (uint64, error) {
			var in T
			reflect.ValueOf(&in).Elem().Set(v)
			return fn(sc, in, depth)
		},
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.aggFns[name]; ok {
		return fmt.Errorf("register aggregate hash %q: %w", name, ErrRegistered)
	}
	r.aggFns[name] = f
	return nil
}

func builtinFilters() []*filterFunc {
	intT := reflect.TypeFor[int]()
	boolT := reflect.TypeFor[bool]()
	return []*filterFunc{
		{
			name:  FilterAsIs,
			out:   func(t reflect.Type) (reflect.Type, error) { return t, nil },
			apply: func(v reflect.Value) reflect.Value { return v },
		},
		{
			name: "deref",
			out: func(t reflect.Type) (reflect.Type, error) {
				if t.Kind() != reflect.Pointer {
					return nil, &ConfigShapeError{Key: "deref", Want: "pointer", Got: t.String()}
				}
				return t.Elem(), nil
			},
			apply: func(v reflect.Value) reflect.Value {
				if v.IsNil() {
					return reflect.Zero(v.Type().Elem())
				}
				return v.Elem()
			},
		},
		{
			name: "len",
			out: func(t reflect.Type) (reflect.Type, error) {
				switch t.Kind() {
				case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
					return intT, nil
				}
				return nil, &ConfigShapeError{Key: "len", Want: "string, slice, array, map or chan", Got: t.String()}
			},
			apply: func(v reflect.Value) reflect.Value { return reflect.ValueOf(v.Len()) },
		},
		{
			name: "is_nil",
			out: func(t reflect.Type) (reflect.Type, error) {
				switch t.Kind() {
				case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
					return boolT, nil
				}
				return nil, &ConfigShapeError{Key: "is_nil", Want: "nillable", Got: t.String()}
			},
			apply: func(v reflect.Value) reflect.Value { return reflect.ValueOf(v.IsNil()) },
		},
	}
}
