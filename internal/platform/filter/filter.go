// Package filter parses AIP-160 filter expressions and evaluates them
// against in-memory records.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// FieldType describes a supported filter field type.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
)

// Fields defines filterable fields and their types.
type Fields map[string]FieldType

// Schema is a checked set of filterable fields. It is safe for concurrent
// use once built.
type Schema struct {
	decls *filtering.Declarations
	names []string
}

// NewSchema type-checks fields and prepares the declarations every query is
// checked against.
func NewSchema(fields Fields) (*Schema, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	names := make([]string, 0, len(fields))
	for name, kind := range fields {
		var typ *expr.Type
		switch kind {
		case FieldString:
			typ = filtering.TypeString
		case FieldInt:
			typ = filtering.TypeInt
		default:
			return nil, fmt.Errorf("field %s: unsupported type %q", name, kind)
		}
		opts = append(opts, filtering.DeclareIdent(name, typ))
		names = append(names, name)
	}
	decls, err := filtering.NewDeclarations(opts...)
	if err != nil {
		return nil, fmt.Errorf("declare filter fields: %w", err)
	}
	slices.Sort(names)
	return &Schema{decls: decls, names: names}, nil
}

// MustSchema is NewSchema for package-level schemas; it panics on error.
func MustSchema(fields Fields) *Schema {
	s, err := NewSchema(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Names lists the schema's fields in sorted order.
func (s *Schema) Names() []string {
	return slices.Clone(s.names)
}

// Filter is a parsed query. The zero Filter matches every record.
type Filter struct {
	root *expr.Expr
}

// Parse checks query against the schema. A blank query yields the zero
// Filter.
func (s *Schema) Parse(query string) (Filter, error) {
	if strings.TrimSpace(query) == "" {
		return Filter{}, nil
	}
	parsed, err := filtering.ParseFilterString(query, s.decls)
	if err != nil {
		return Filter{}, fmt.Errorf("parse filter (fields: %s): %w", strings.Join(s.names, ", "), err)
	}
	return Filter{root: parsed.CheckedExpr.GetExpr()}, nil
}

// Match reports whether the record behind resolve satisfies the filter.
func (f Filter) Match(resolve Resolver) (bool, error) {
	return Evaluate(f.root, resolve)
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return f.root == nil
}

// Equals renders `field = "value"`, joined to rest with AND when rest is set.
func Equals(field, value, rest string) string {
	clause := fmt.Sprintf("%s = %q", field, value)
	if strings.TrimSpace(rest) == "" {
		return clause
	}
	return clause + " AND (" + rest + ")"
}
