package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"

	jsonschemagen "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema. It is immutable and safe for concurrent use.
type Schema struct {
	name     string
	doc      map[string]any
	compiled *jsonschema.Schema
}

// Compile validates and compiles a schema document.
// A nil document compiles to the permissive object schema.
func Compile(name string, doc map[string]any) (*Schema, error) {
	if doc == nil {
		doc = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema %s: encode: %w", name, err)
	}

	url := "mem://schemas/" + name + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema %s: add resource: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: compile: %w", name, err)
	}
	return &Schema{name: name, doc: maps.Clone(doc), compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error. Use it for static schemas.
func MustCompile(name string, doc map[string]any) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Document returns a copy of the schema document, without meta keywords,
// suitable for sending to a model provider.
func (s *Schema) Document() map[string]any {
	out := maps.Clone(s.doc)
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// Validate checks a decoded JSON value (as produced by encoding/json).
func (s *Schema) Validate(doc any) error {
	err := s.compiled.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Schema: s.name, Err: err}
	}
	out := &ValidationError{Schema: s.name}
	collect(ve, &out.Violations)
	if len(out.Violations) == 0 {
		out.Violations = append(out.Violations, Violation{Path: ve.InstanceLocation, Reason: ve.Message})
	}
	return out
}

// ValidateJSON decodes raw JSON and validates it. The decoded value is returned on success.
func (s *Schema) ValidateJSON(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Schema: s.name, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := s.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// collect flattens the leaf causes of a validation error.
func collect(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{Path: ve.InstanceLocation, Reason: ve.Message})
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}

// Reflect derives a schema document from the JSON shape of T.
// Fields without omitempty are required and unknown properties are rejected.
func Reflect[T any]() map[string]any {
	r := &jsonschemagen.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		// Expansion looks the type up by name, which anonymous structs lack.
		ExpandedStruct: reflect.TypeFor[T]().Name() != "",
	}
	raw, err := json.Marshal(r.Reflect(new(T)))
	if err != nil {
		// Reflected schemas are plain data; this only fails on programmer error.
		panic(fmt.Sprintf("schema: reflect %T: %v", *new(T), err))
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("schema: reflect %T: %v", *new(T), err))
	}
	delete(doc, "$schema")
	return doc
}
