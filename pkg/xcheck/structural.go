package xcheck

import (
	"cmp"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unsafe"
)

// hashRun executes compiled plans for one top-level hash call.
type hashRun struct {
	e *Engine
}

func (r *hashRun) root(t reflect.Type) string {
	if r.e.observer == nil {
		return ""
	}
	return r.e.reg.TypeName(t)
}

// child extends path only when someone is listening for observations.
func (r *hashRun) child(path, seg string) string {
	if r.e.observer == nil {
		return ""
	}
	return path + seg
}

func (r *hashRun) hash(p *typePlan, v reflect.Value, depth int, a, s HasherKind, path string) (uint64, error) {
	switch p.kind {
	case planChecker:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return NullPointerHash, nil
		}
		return v.Interface().(CrossChecker).CrossCheckHash(Scope{A: a, S: s, engine: r.e}, depth)

	case planScalar:
		h := s.New()
		writeScalar(h, v)
		return h.Sum64(), nil

	case planString:
		h := s.New()
		str := v.String()
		h.WriteU64(uint64(len(str)))
		_, _ = h.Write([]byte(str))
		return h.Sum64(), nil

	case planBytes:
		if depth <= 0 {
			return LeafAggregateHash, nil
		}
		h := a.New()
		h.WriteU64(uint64(v.Len()))
		_, _ = h.Write(v.Bytes())
		return h.Sum64(), nil

	case planPointer:
		if v.IsNil() {
			return NullPointerHash, nil
		}
		if depth <= 0 {
			return LeafPointerHash, nil
		}
		return r.hash(p.elem, v.Elem(), depth-1, a, s, path)

	case planSlice, planArray:
		if depth <= 0 {
			return LeafAggregateHash, nil
		}
		h := a.New()
		n := v.Len()
		h.WriteU64(uint64(n))
		for i := 0; i < n; i++ {
			eh, err := r.hash(p.elem, v.Index(i), depth-1, a, s, r.child(path, "["+strconv.Itoa(i)+"]"))
			if err != nil {
				return 0, err
			}
			h.WriteU64(eh)
		}
		return h.Sum64(), nil

	case planMap:
		if depth <= 0 {
			return LeafAggregateHash, nil
		}
		return r.hashMap(p, v, depth, a, s, path)

	case planInterface:
		if v.IsNil() {
			return NilInterfaceHash, nil
		}
		dyn := v.Elem()
		dp, err := r.e.plan(dyn.Type())
		if err != nil {
			return 0, err
		}
		return r.hash(dp, dyn, depth, a, s, path)

	case planStruct:
		return r.hashStruct(p, v, depth, a, s, path)
	}
	return 0, &ConfigShapeError{Want: "structurally hashable", Got: p.typ.String()}
}

// hashMap hashes entries in (key hash, value hash) order so the result does
// not depend on map iteration order.
func (r *hashRun) hashMap(p *typePlan, v reflect.Value, depth int, a, s HasherKind, path string) (uint64, error) {
	type entry struct{ k, v uint64 }
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		kh, err := r.hash(p.key, iter.Key(), depth-1, a, s, r.child(path, "[key]"))
		if err != nil {
			return 0, err
		}
		vh, err := r.hash(p.elem, iter.Value(), depth-1, a, s, r.child(path, "[value]"))
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry{k: kh, v: vh})
	}
	slices.SortFunc(entries, func(x, y entry) int {
		if c := cmp.Compare(x.k, y.k); c != 0 {
			return c
		}
		return cmp.Compare(x.v, y.v)
	})

	h := a.New()
	h.WriteU64(uint64(len(entries)))
	for _, en := range entries {
		h.WriteU64(en.k)
		h.WriteU64(en.v)
	}
	return h.Sum64(), nil
}

func (r *hashRun) hashStruct(p *typePlan, v reflect.Value, depth int, a, s HasherKind, path string) (uint64, error) {
	ca := p.aRef.resolve(a, s)
	cs := p.sRef.resolve(a, s)
	if p.aggFn != nil {
		return p.aggFn.call(Scope{A: ca, S: cs, engine: r.e}, v, depth)
	}
	if depth <= 0 {
		return LeafAggregateHash, nil
	}

	if p.unexported && !v.CanAddr() {
		cp := reflect.New(p.typ).Elem()
		cp.Set(v)
		v = cp
	}

	h := p.accRef.resolve(a, s).New()
	for i := range p.fields {
		f := &p.fields[i]
		fv := v.Field(f.index)
		if f.unexported {
			// Lift the read-only flag so filters and functions can take the value.
			fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
		}
		switch f.policy.Kind {
		case PolicySkip:
		case PolicyByValue:
			if f.filter != nil {
				fv = f.filter.apply(fv)
			}
			fpath := r.child(path, "."+f.name)
			fh, err := r.hash(f.plan, fv, depth-1, ca, cs, fpath)
			if err != nil {
				return 0, err
			}
			h.WriteU64(fh)
			r.observe(fpath, f, fh)
		case PolicyByRaw:
			if f.filter != nil {
				fv = f.filter.apply(fv)
			}
			raw := f.raw(fv)
			h.WriteU64(raw)
			r.observe(r.child(path, "."+f.name), f, raw)
		case PolicyCustom:
			if err := f.custom.call(h, fv); err != nil {
				return 0, err
			}
		default:
			fh, err := r.hash(f.plan, fv, depth-1, ca, cs, r.child(path, "."+f.name))
			if err != nil {
				return 0, err
			}
			h.WriteU64(fh)
		}
	}
	return h.Sum64(), nil
}

func (r *hashRun) observe(path string, f *fieldPlan, value uint64) {
	if r.e.observer == nil {
		return
	}
	r.e.observer(Observation{
		Path:  path,
		Tag:   f.policy.Tag,
		Kind:  f.policy.Kind,
		Value: value,
	})
}

func writeScalar(h Hasher, v reflect.Value) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			h.WriteU64(1)
		} else {
			h.WriteU64(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		h.WriteU64(uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		h.WriteU64(v.Uint())
	case reflect.Float32:
		h.WriteU64(uint64(math.Float32bits(float32(v.Float()))))
	case reflect.Float64:
		h.WriteU64(math.Float64bits(v.Float()))
	case reflect.Complex64:
		c := v.Complex()
		h.WriteU64(uint64(math.Float32bits(float32(real(c)))))
		h.WriteU64(uint64(math.Float32bits(float32(imag(c)))))
	case reflect.Complex128:
		c := v.Complex()
		h.WriteU64(math.Float64bits(real(c)))
		h.WriteU64(math.Float64bits(imag(c)))
	}
}
