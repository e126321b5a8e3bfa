// Package schema describes record types in YAML or TOML files and builds Go
// types from them at runtime, so values read from JSON, YAML, TOML or CBOR
// documents can be cross-check hashed without writing Go code.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format names a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCBOR Format = "cbor"
)

// ParseFormat accepts a format name, case-insensitively. "yml" is an alias
// for yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Schema is the file form of a set of record types.
type Schema struct {
	Defaults Defaults  `yaml:"defaults" toml:"defaults"`
	Types    []TypeDef `yaml:"types" toml:"types"`
}

// Defaults hold hashing parameters used when the caller gives none.
type Defaults struct {
	Depth   int    `yaml:"depth" toml:"depth"`
	AHasher string `yaml:"ahasher" toml:"ahasher"`
	SHasher string `yaml:"shasher" toml:"shasher"`
}

// TypeDef is one record type. XCheck is the type-level annotation.
type TypeDef struct {
	Name   string     `yaml:"name" toml:"name"`
	XCheck string     `yaml:"xcheck,omitempty" toml:"xcheck"`
	Fields []FieldDef `yaml:"fields" toml:"fields"`
}

// FieldDef is one field of a record type. Type is a type expression such as
// "uint32", "[]string", "*Node" or "map[string]int64".
type FieldDef struct {
	Name   string `yaml:"name" toml:"name"`
	Type   string `yaml:"type" toml:"type"`
	XCheck string `yaml:"xcheck,omitempty" toml:"xcheck"`
}

// Parse decodes a schema document. Only YAML and TOML schemas are accepted.
func Parse(data []byte, format Format) (*Schema, error) {
	var s Schema
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml schema: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return nil, fmt.Errorf("parse toml schema: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse toml schema: unknown key %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("%w: schemas are yaml or toml, not %q", ErrUnknownFormat, format)
	}
	return &s, nil
}

// Load reads and parses the schema file at path, choosing the decoder from
// the file extension.
func Load(path string) (*Schema, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %q: %w", path, err)
	}
	s, err := Parse(b, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Lookup returns the named type definition.
func (s *Schema) Lookup(name string) (TypeDef, bool) {
	for _, td := range s.Types {
		if td.Name == name {
			return td, true
		}
	}
	return TypeDef{}, false
}
