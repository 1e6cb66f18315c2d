package schema

import (
	"strings"

	"caseflow/internal/staging"
)

// FieldSpec names a field and the paths it may be found at, highest priority
// first. Paths are dot separated; a path starting with @ reads element
// context such as the year key of a per-year layout.
type FieldSpec struct {
	Name  string
	Paths []string
}

// ChildSpec declares a nested repeated group, e.g. transcript transactions.
type ChildSpec struct {
	Paths  []string
	Fields []FieldSpec
}

// Document is a payload bound to the schema version it matched.
type Document struct {
	Source  staging.SourceType
	Version string
	root    any
	version *Version
}

// Elements returns the repeated entities of the payload (transcript years,
// income forms) or the root itself for single-entity payloads.
func (d *Document) Elements() []Element {
	items := d.version.elements(d.root)
	out := make([]Element, 0, len(items))
	for _, item := range items {
		out = append(out, Element{data: item.data, context: item.context, fields: d.version.fieldIndex, children: d.version.Children})
	}
	return out
}

type rawElement struct {
	data    any
	context map[string]string
}

// Element is one entity inside a document.
type Element struct {
	data     any
	context  map[string]string
	fields   map[string]FieldSpec
	children map[string]ChildSpec
}

// Field extracts a declared field. Unknown field names are never resolved.
func (e Element) Field(name string) Value {
	spec, ok := e.fields[name]
	if !ok {
		return Value{Field: name}
	}
	return e.lookup(spec)
}

func (e Element) lookup(spec FieldSpec) Value {
	value := Value{Field: spec.Name, tried: spec.Paths}
	for _, path := range spec.Paths {
		if key, ok := strings.CutPrefix(path, "@"); ok {
			if ctx, found := e.context[key]; found && ctx != "" {
				value.Path, value.Raw, value.Resolved = path, ctx, true
				return value
			}
			continue
		}
		raw, found := walk(e.data, path)
		if !found || !isScalar(raw) {
			continue
		}
		if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		value.Path, value.Raw, value.Resolved = path, raw, true
		return value
	}
	return value
}

// Children returns a nested group's elements.
func (e Element) Children(name string) []Element {
	spec, ok := e.children[name]
	if !ok {
		return nil
	}
	index := indexFields(spec.Fields)
	for _, path := range spec.Paths {
		raw, found := walk(e.data, path)
		list, isList := raw.([]any)
		if !found || !isList {
			continue
		}
		out := make([]Element, 0, len(list))
		for _, item := range list {
			if _, isMap := item.(map[string]any); isMap {
				out = append(out, Element{data: item, context: e.context, fields: index})
			}
		}
		return out
	}
	return nil
}

func walk(data any, path string) (any, bool) {
	current := data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any, nil:
		return false
	default:
		return true
	}
}

func indexFields(specs []FieldSpec) map[string]FieldSpec {
	index := make(map[string]FieldSpec, len(specs))
	for _, spec := range specs {
		index[spec.Name] = spec
	}
	return index
}
