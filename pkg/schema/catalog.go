package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/jlrickert/xcheck/pkg/xcheck"
)

var builtinTypes = map[string]reflect.Type{
	"bool":    reflect.TypeFor[bool](),
	"int":     reflect.TypeFor[int](),
	"int8":    reflect.TypeFor[int8](),
	"int16":   reflect.TypeFor[int16](),
	"int32":   reflect.TypeFor[int32](),
	"int64":   reflect.TypeFor[int64](),
	"uint":    reflect.TypeFor[uint](),
	"uint8":   reflect.TypeFor[uint8](),
	"uint16":  reflect.TypeFor[uint16](),
	"uint32":  reflect.TypeFor[uint32](),
	"uint64":  reflect.TypeFor[uint64](),
	"float32": reflect.TypeFor[float32](),
	"float64": reflect.TypeFor[float64](),
	"string":  reflect.TypeFor[string](),
	"bytes":   reflect.TypeFor[[]byte](),
}

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Catalog holds the Go types built from a schema. Type-level annotations and
// display names are registered on the registry the catalog was compiled
// against, so engines must use that registry.
type Catalog struct {
	Defaults Defaults

	reg   *xcheck.Registry
	types map[string]reflect.Type
	names []string
}

// Compile validates s and builds a struct type for every type it defines.
func Compile(s *Schema, reg *xcheck.Registry) (*Catalog, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	if reg == nil {
		reg = xcheck.DefaultRegistry
	}

	b := &builder{
		reg:     reg,
		defs:    make(map[string]TypeDef, len(s.Types)),
		built:   make(map[string]reflect.Type, len(s.Types)),
		owners:  make(map[reflect.Type]string, len(s.Types)),
		pending: make(map[string]bool),
	}
	for _, td := range s.Types {
		switch {
		case td.Name == "":
			return nil, &SchemaError{Type: "<unnamed>", Msg: "type name is required"}
		case builtinTypes[td.Name] != nil:
			return nil, &SchemaError{Type: td.Name, Msg: "name is reserved for a builtin type"}
		}
		if _, dup := b.defs[td.Name]; dup {
			return nil, &SchemaError{Type: td.Name, Msg: "defined more than once"}
		}
		b.defs[td.Name] = td
	}

	c := &Catalog{
		Defaults: s.Defaults,
		reg:      reg,
		types:    b.built,
	}
	if c.Defaults.Depth == 0 {
		c.Defaults.Depth = xcheck.DefaultDepth
	}
	if c.Defaults.Depth < 0 {
		return nil, &SchemaError{Type: "defaults", Field: "depth", Msg: "must not be negative"}
	}
	if c.Defaults.AHasher == "" {
		c.Defaults.AHasher = xcheck.XXH3.Name
	}
	if c.Defaults.SHasher == "" {
		c.Defaults.SHasher = xcheck.FNV1a.Name
	}
	if _, _, err := reg.Channels(c.Defaults.AHasher, c.Defaults.SHasher); err != nil {
		return nil, &SchemaError{Type: "defaults", Msg: "unknown hasher", Err: err}
	}

	for _, td := range s.Types {
		if _, err := b.build(td.Name); err != nil {
			return nil, err
		}
		c.names = append(c.names, td.Name)
	}
	return c, nil
}

// Registry returns the registry holding the catalog's annotations.
func (c *Catalog) Registry() *xcheck.Registry { return c.reg }

// Names lists the catalog's types in schema order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Type returns the Go type built for name.
func (c *Catalog) Type(name string) (reflect.Type, error) {
	t, ok := c.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Decode reads one value of the named type from data. The result is a
// struct value (not a pointer). Fields the type does not define are
// rejected.
func (c *Catalog) Decode(name string, format Format, data []byte) (any, error) {
	t, err := c.Type(name)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(t)
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s json: %w", name, err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(ptr.Interface()); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s yaml: %w", name, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), ptr.Interface())
		if err != nil {
			return nil, fmt.Errorf("decode %s toml: %w", name, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decode %s toml: unknown key %q", name, undecoded[0].String())
		}
	case FormatCBOR:
		if err := cborDecMode.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s cbor: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return ptr.Elem().Interface(), nil
}

// DecodeFile reads a value of the named type from the file at path, choosing
// the decoder from the file extension.
func (c *Catalog) DecodeFile(name, path string) (any, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read value %q: %w", path, err)
	}
	return c.Decode(name, format, b)
}

type builder struct {
	reg     *xcheck.Registry
	defs    map[string]TypeDef
	built   map[string]reflect.Type
	owners  map[reflect.Type]string
	pending map[string]bool
}

// build returns the struct type for the named definition, building the types
// it references first. Struct types cannot refer to themselves, so any cycle
// is rejected.
func (b *builder) build(name string) (reflect.Type, error) {
	if t, ok := b.built[name]; ok {
		return t, nil
	}
	td, ok := b.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	if b.pending[name] {
		return nil, &SchemaError{Type: name, Msg: "cyclic type reference"}
	}
	b.pending[name] = true
	defer delete(b.pending, name)

	if td.XCheck != "" {
		if _, err := xcheck.ParseAnnotation(td.XCheck); err != nil {
			return nil, &SchemaError{Type: name, Msg: "bad type annotation", Err: err}
		}
	}

	fields := make([]reflect.StructField, 0, len(td.Fields))
	seen := make(map[string]string, len(td.Fields))
	for _, fd := range td.Fields {
		goName, err := exportedName(fd.Name)
		if err != nil {
			return nil, &SchemaError{Type: name, Field: fd.Name, Msg: err.Error()}
		}
		if prev, dup := seen[goName]; dup {
			return nil, &SchemaError{Type: name, Field: fd.Name, Msg: fmt.Sprintf("collides with field %q", prev)}
		}
		seen[goName] = fd.Name

		if fd.XCheck != "" {
			if _, err := xcheck.ParseAnnotation(fd.XCheck); err != nil {
				return nil, &SchemaError{Type: name, Field: fd.Name, Msg: "bad field annotation", Err: err}
			}
		}
		ft, err := b.resolve(fd.Type)
		if err != nil {
			var se *SchemaError
			if errors.As(err, &se) {
				return nil, err
			}
			return nil, &SchemaError{Type: name, Field: fd.Name, Msg: fmt.Sprintf("bad type %q", fd.Type), Err: err}
		}
		fields = append(fields, reflect.StructField{
			Name: goName,
			Type: ft,
			Tag:  fieldTag(fd),
		})
	}

	t := reflect.StructOf(fields)
	if other, ok := b.owners[t]; ok {
		return nil, &SchemaError{Type: name, Msg: fmt.Sprintf("has the same fields as %q", other)}
	}
	b.owners[t] = name
	b.built[name] = t

	b.reg.NameType(t, name)
	if td.XCheck != "" {
		b.reg.Annotate(t, td.XCheck)
	}
	return t, nil
}

// resolve turns a type expression into a Go type.
func (b *builder) resolve(expr string) (reflect.Type, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return nil, errors.New("empty type expression")
	case strings.HasPrefix(expr, "[]"):
		elem, err := b.resolve(expr[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case strings.HasPrefix(expr, "*"):
		elem, err := b.resolve(expr[1:])
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil
	case strings.HasPrefix(expr, "map["):
		end := strings.IndexByte(expr, ']')
		if end < 0 {
			return nil, errors.New("unterminated map key")
		}
		if key := strings.TrimSpace(expr[len("map["):end]); key != "string" {
			return nil, fmt.Errorf("map keys must be string, not %q", key)
		}
		elem, err := b.resolve(expr[end+1:])
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(builtinTypes["string"], elem), nil
	}
	if t, ok := builtinTypes[expr]; ok {
		return t, nil
	}
	return b.build(expr)
}

func fieldTag(fd FieldDef) reflect.StructTag {
	tag := fmt.Sprintf("json:%q yaml:%q toml:%q cbor:%q", fd.Name, fd.Name, fd.Name, fd.Name)
	if fd.XCheck != "" {
		tag += fmt.Sprintf(" xcheck:%q", fd.XCheck)
	}
	return reflect.StructTag(tag)
}

// exportedName maps a schema field name onto an exported Go identifier.
func exportedName(name string) (string, error) {
	if name == "" {
		return "", errors.New("field name is required")
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return "", fmt.Errorf("field name %q is not an identifier", name)
	}
	r, size := utf8.DecodeRuneInString(name)
	up := unicode.ToUpper(r)
	if !unicode.IsUpper(up) {
		return "", fmt.Errorf("field name %q must start with a letter", name)
	}
	return string(up) + name[size:], nil
}
