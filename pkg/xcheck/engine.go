package xcheck

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Hashes used where structural descent stops. They are fixed so that results
// stay comparable across processes and implementations.
const (
	NullPointerHash   uint64 = 0x6e75_6c6c_7074_7200 // "nullptr"
	LeafPointerHash   uint64 = 0x6c65_6166_7074_7200 // "leafptr"
	LeafAggregateHash uint64 = 0x6c65_6166_6167_6700 // "leafagg"
	NilInterfaceHash  uint64 = 0x6e69_6c69_6661_6300 // "nilifac"
)

// DefaultDepth is the recursion budget used by callers that have no better
// value.
const DefaultDepth = 8

// CrossChecker is implemented by types that hash themselves. The engine calls
// it instead of any structural or annotation-driven algorithm.
type CrossChecker interface {
	CrossCheckHash(sc Scope, depth int) (uint64, error)
}

var crossCheckerType = reflect.TypeFor[CrossChecker]()

// Scope carries the two hasher channels of one structural hash call. Custom
// hash functions use it to hash nested values the same way the engine would.
type Scope struct {
	A HasherKind
	S HasherKind

	engine *Engine
}

// Hash computes the structural hash of v with the scope's channels.
func (sc Scope) Hash(v any, depth int) (uint64, error) {
	e := sc.engine
	if e == nil {
		e = New()
	}
	return e.HashWith(v, depth, sc.A, sc.S)
}

// Engine compiles per-type hashing plans and executes them. Plans are cached
// and safe for concurrent use once compiled.
type Engine struct {
	reg      *Registry
	lg       *slog.Logger
	observer Observer
	defA     string
	defS     string

	plans sync.Map // reflect.Type -> *typePlan
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the registry used to bind names. Defaults to
// DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		e.reg = r
	}
}

// WithLogger sets the logger used for compilation diagnostics.
func WithLogger(lg *slog.Logger) Option {
	return func(e *Engine) {
		e.lg = lg
	}
}

// WithObserver installs a callback receiving every check_value and check_raw
// contribution.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithChannels sets the hasher names used by Hash for the A and S channels.
func WithChannels(a, s string) Option {
	return func(e *Engine) {
		e.defA = a
		e.defS = s
	}
}

// New returns an engine. Without options it uses DefaultRegistry, xxh3 for
// the A channel, fnv1a for the S channel and a discarding logger.
func New(opts ...Option) *Engine {
	e := &Engine{
		defA: XXH3.Name,
		defS: FNV1a.Name,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o(e)
	}
	if e.reg == nil {
		e.reg = DefaultRegistry
	}
	if e.lg == nil {
		e.lg = slog.New(slog.DiscardHandler)
	}
	return e
}

// Registry returns the registry the engine binds names against.
func (e *Engine) Registry() *Registry { return e.reg }

// Compile resolves and binds the configuration of t and every type reachable
// from it. Configuration errors are reported here, before any value of t is
// hashed. Hash compiles on demand, so calling Compile is optional.
func (e *Engine) Compile(t reflect.Type) error {
	_, err := e.plan(t)
	return err
}

// Hash computes the cross-check hash of v using the engine's default
// channels.
func (e *Engine) Hash(v any, depth int) (uint64, error) {
	a, s, err := e.reg.Channels(e.defA, e.defS)
	if err != nil {
		return 0, err
	}
	return e.HashWith(v, depth, a, s)
}

// HashWith computes the cross-check hash of v with explicit channels.
func (e *Engine) HashWith(v any, depth int, a, s HasherKind) (uint64, error) {
	if a.New == nil || s.New == nil {
		return 0, fmt.Errorf("hash: both hasher channels are required")
	}
	if v == nil {
		return NilInterfaceHash, nil
	}
	rv := reflect.ValueOf(v)
	p, err := e.plan(rv.Type())
	if err != nil {
		return 0, err
	}
	r := &hashRun{e: e}
	return r.hash(p, rv, depth, a, s, r.root(rv.Type()))
}

// FieldDescription is the resolved policy of one struct field.
type FieldDescription struct {
	Name   string
	Type   string
	Policy FieldPolicy
}

// TypeDescription is the resolved configuration of one struct type. Fields is
// empty when the aggregate has a custom hash function.
type TypeDescription struct {
	Type      string
	Aggregate AggregatePolicy
	Fields    []FieldDescription
}

// Describe compiles t and reports its resolved policies.
func (e *Engine) Describe(t reflect.Type) (TypeDescription, error) {
	if t.Kind() != reflect.Struct {
		return TypeDescription{}, fmt.Errorf("describe %s: not a struct type", t)
	}
	p, err := e.plan(t)
	if err != nil {
		return TypeDescription{}, err
	}
	d := TypeDescription{Type: e.reg.TypeName(t), Aggregate: p.agg}
	for _, f := range p.fields {
		d.Fields = append(d.Fields, FieldDescription{
			Name:   f.name,
			Type:   e.reg.TypeName(t.Field(f.index).Type),
			Policy: f.policy,
		})
	}
	return d, nil
}
