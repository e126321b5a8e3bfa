package xcheck

import (
	"errors"
	"math"
	"reflect"
)

type planKind int

const (
	planScalar planKind = iota
	planString
	planBytes
	planPointer
	planSlice
	planArray
	planMap
	planInterface
	planStruct
	planChecker
)

// channelRef names a hasher channel. A placeholder refers to the channel the
// caller passed in; otherwise kind is a concrete registry entry.
type channelRef struct {
	placeholder string
	kind        HasherKind
}

func (c channelRef) resolve(a, s HasherKind) HasherKind {
	switch c.placeholder {
	case DefaultAHasher:
		return a
	case DefaultSHasher:
		return s
	}
	return c.kind
}

type typePlan struct {
	typ  reflect.Type
	kind planKind
	elem *typePlan
	key  *typePlan

	agg    AggregatePolicy
	aggFn  *aggregateFunc
	aRef   channelRef
	sRef   channelRef
	accRef channelRef
	fields []fieldPlan

	// unexported is set when some field needs an addressable parent to be read.
	unexported bool
}

type fieldPlan struct {
	name       string
	index      int
	unexported bool
	policy     FieldPolicy
	filter     *filterFunc
	plan       *typePlan
	raw        func(reflect.Value) uint64
	custom     *fieldFunc
}

// plan returns the cached plan for t, compiling it and everything reachable
// from it on first use. Nothing is cached when compilation fails.
func (e *Engine) plan(t reflect.Type) (*typePlan, error) {
	if p, ok := e.plans.Load(t); ok {
		return p.(*typePlan), nil
	}
	c := &planCompiler{e: e, pending: make(map[reflect.Type]*typePlan)}
	p, err := c.compile(t)
	if err != nil {
		e.lg.Debug("cross-check configuration rejected", "type", t.String(), "err", err)
		return nil, err
	}
	for pt, pp := range c.pending {
		e.plans.LoadOrStore(pt, pp)
	}
	e.lg.Debug("compiled cross-check plan", "type", t.String(), "types", len(c.pending))
	return p, nil
}

type planCompiler struct {
	e       *Engine
	pending map[reflect.Type]*typePlan
}

func (c *planCompiler) compile(t reflect.Type) (*typePlan, error) {
	if p, ok := c.pending[t]; ok {
		return p, nil
	}
	if p, ok := c.e.plans.Load(t); ok {
		return p.(*typePlan), nil
	}
	p := &typePlan{typ: t}
	c.pending[t] = p

	if t.Kind() != reflect.Interface && t.Implements(crossCheckerType) {
		p.kind = planChecker
		return p, nil
	}

	var err error
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		p.kind = planScalar
	case reflect.String:
		p.kind = planString
	case reflect.Pointer:
		p.kind = planPointer
		p.elem, err = c.compile(t.Elem())
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && !t.Elem().Implements(crossCheckerType) {
			p.kind = planBytes
			break
		}
		p.kind = planSlice
		p.elem, err = c.compile(t.Elem())
	case reflect.Array:
		p.kind = planArray
		p.elem, err = c.compile(t.Elem())
	case reflect.Map:
		p.kind = planMap
		if p.key, err = c.compile(t.Key()); err == nil {
			p.elem, err = c.compile(t.Elem())
		}
	case reflect.Interface:
		p.kind = planInterface
	case reflect.Struct:
		p.kind = planStruct
		err = c.compileStruct(p)
	default:
		err = &ConfigShapeError{Want: "structurally hashable", Got: t.String()}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *planCompiler) compileStruct(p *typePlan) error {
	t := p.typ
	reg := c.e.reg

	text, ok := reg.typeAnnotation(t)
	if !ok {
		text = blankFieldAnnotation(t)
	}
	args, err := ParseAnnotation(text)
	if err != nil {
		return c.typeError(t, "", err)
	}
	agg, err := ResolveAggregate(args)
	if err != nil {
		return c.typeError(t, "", err)
	}
	p.agg = agg

	if p.aRef, err = c.channel(agg.AHasher); err != nil {
		return c.typeError(t, "", err)
	}
	if p.sRef, err = c.channel(agg.SHasher); err != nil {
		return c.typeError(t, "", err)
	}

	// A whole-value function replaces field hashing, so the fields are
	// never looked at.
	if agg.CustomHash != "" {
		fn, ok := reg.aggregateFunc(agg.CustomHash)
		if !ok {
			return c.typeError(t, "", &UnknownFunctionError{Kind: "aggregate hash", Name: agg.CustomHash})
		}
		if !t.AssignableTo(fn.in) {
			return c.typeError(t, "", &ConfigShapeError{Key: KeyCustomHash, Want: fn.in.String(), Got: t.String()})
		}
		p.aggFn = fn
		return nil
	}

	if p.accRef, err = c.channel(agg.Hasher); err != nil {
		return c.typeError(t, "", err)
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Name == "_" {
			continue
		}
		fp, err := c.compileField(t, sf, i)
		if err != nil {
			return c.typeError(t, sf.Name, err)
		}
		if !sf.IsExported() && fp.policy.Kind != PolicySkip {
			fp.unexported = true
			p.unexported = true
		}
		p.fields = append(p.fields, fp)
	}
	return nil
}

func (c *planCompiler) compileField(t reflect.Type, sf reflect.StructField, index int) (fieldPlan, error) {
	reg := c.e.reg
	text, ok := reg.fieldAnnotation(t, sf.Name)
	if !ok {
		text = sf.Tag.Get(annotationTagName)
	}
	args, err := ParseAnnotation(text)
	if err != nil {
		return fieldPlan{}, err
	}
	pol, err := ResolveField(args)
	if err != nil {
		return fieldPlan{}, err
	}

	fp := fieldPlan{name: sf.Name, index: index, policy: pol}
	switch pol.Kind {
	case PolicySkip:
	case PolicyByValue:
		out, err := c.bindFilter(&fp, sf.Type)
		if err != nil {
			return fieldPlan{}, err
		}
		if fp.plan, err = c.compile(out); err != nil {
			return fieldPlan{}, err
		}
	case PolicyByRaw:
		out, err := c.bindFilter(&fp, sf.Type)
		if err != nil {
			return fieldPlan{}, err
		}
		if fp.raw, err = rawConverter(out); err != nil {
			return fieldPlan{}, err
		}
	case PolicyCustom:
		fn, ok := reg.fieldFunc(pol.Function)
		if !ok {
			return fieldPlan{}, &UnknownFunctionError{Kind: "field hash", Name: pol.Function}
		}
		if !sf.Type.AssignableTo(fn.in) {
			return fieldPlan{}, &ConfigShapeError{Key: KeyCustomHash, Want: fn.in.String(), Got: sf.Type.String()}
		}
		fp.custom = fn
	default:
		if fp.plan, err = c.compile(sf.Type); err != nil {
			return fieldPlan{}, err
		}
	}
	return fp, nil
}

// bindFilter resolves the field's filter and returns the type it produces.
func (c *planCompiler) bindFilter(fp *fieldPlan, in reflect.Type) (reflect.Type, error) {
	name := fp.policy.Filter
	if name == FilterIdentity {
		return in, nil
	}
	f, ok := c.e.reg.filter(name)
	if !ok {
		return nil, &UnknownFunctionError{Kind: "filter", Name: name}
	}
	out, err := f.out(in)
	if err != nil {
		return nil, err
	}
	fp.filter = f
	return out, nil
}

func (c *planCompiler) channel(name string) (channelRef, error) {
	if name == DefaultAHasher || name == DefaultSHasher {
		return channelRef{placeholder: name}, nil
	}
	k, ok := c.e.reg.Hasher(name)
	if !ok {
		return channelRef{}, &UnknownFunctionError{Kind: "hasher", Name: name}
	}
	return channelRef{kind: k}, nil
}

// blankFieldAnnotation returns the tag of the first blank field carrying an
// xcheck annotation.
func blankFieldAnnotation(t reflect.Type) string {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Name != "_" {
			continue
		}
		if text, ok := sf.Tag.Lookup(annotationTagName); ok {
			return text
		}
	}
	return ""
}

// rawConverter reinterprets values of t as a 64-bit pattern.
func rawConverter(t reflect.Type) (func(reflect.Value) uint64, error) {
	switch t.Kind() {
	case reflect.Bool:
		return func(v reflect.Value) uint64 {
			if v.Bool() {
				return 1
			}
			return 0
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v reflect.Value) uint64 { return uint64(v.Int()) }, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(v reflect.Value) uint64 { return v.Uint() }, nil
	case reflect.Float32:
		return func(v reflect.Value) uint64 { return uint64(math.Float32bits(float32(v.Float()))) }, nil
	case reflect.Float64:
		return func(v reflect.Value) uint64 { return math.Float64bits(v.Float()) }, nil
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Func, reflect.Map, reflect.Slice:
		return func(v reflect.Value) uint64 { return uint64(v.Pointer()) }, nil
	}
	return nil, &ConfigShapeError{Key: KeyCheckRaw, Want: "integer, bool, float or pointer-like", Got: t.String()}
}

// typeError attaches t (and field) to err unless a nested type already did.
func (c *planCompiler) typeError(t reflect.Type, field string, err error) error {
	var te *TypeConfigError
	if errors.As(err, &te) {
		return err
	}
	return &TypeConfigError{Type: c.e.reg.TypeName(t), Field: field, Err: err}
}
