// Package results converts SPARQL JSON results into typed tables. Every binding is converted
// according to its datatype, columns holding wkt literals turn the table into the spatial variant.
package results

import (
	"fmt"
	"io"
)

// Parse decodes the response document and normalizes it to a table
func Parse(r io.Reader) (*Table, error) {
	resp, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Normalize(resp)
}

// Normalize makes a table from the response. Columns follow head.vars order and each row
// contributes exactly one value to every column. Returns ErrNotFound for an empty result,
// *ExecutionError for endpoint error documents, *UnsupportedTypeError for unknown datatypes
// and *ConversionError for values not matching their datatype.
func Normalize(resp *Response) (*Table, error) {
	if err := resp.check(); err != nil {
		return nil, err
	}
	if resp.Boolean != nil {
		return nil, ErrBooleanResult
	}
	if resp.Rows() == 0 {
		return nil, ErrNotFound
	}

	rows := resp.Results.Bindings
	res := &Table{Columns: make([]Column, len(resp.Head.Vars))}
	geo := geometryColumn{}

	for i, name := range resp.Head.Vars {
		col := Column{Name: name, Values: make([]any, 0, len(rows))}
		typed := false
		for n, row := range rows {
			b, ok := row[name]
			if !ok {
				col.Values = append(col.Values, nil)
				continue
			}
			v, kind, err := convert(name, n, b)
			if err != nil {
				return nil, err
			}
			if kind == KindGeometry {
				if err := geo.mark(name); err != nil {
					return nil, err
				}
			}
			if !typed {
				col.Kind, typed = kind, true
			}
			col.Values = append(col.Values, v)
		}
		res.Columns[i] = col
	}

	res.Geometry = geo.name
	return res, nil
}

func convert(name string, row int, b Binding) (any, Kind, error) {
	if b.Datatype == "" {
		return b.Value, KindString, nil
	}
	kind, ok := KindOf(b.Datatype)
	if !ok {
		return nil, kind, &UnsupportedTypeError{Variable: name, Datatype: b.Datatype}
	}
	v, err := kind.Convert(b.Value)
	if err != nil {
		return nil, kind, &ConversionError{Variable: name, Row: row, Datatype: b.Datatype, Value: b.Value, Err: err}
	}
	return v, kind, nil
}

// geometryColumn accumulates the candidate geometry column, a second one is an error
type geometryColumn struct {
	name string
}

func (g *geometryColumn) mark(name string) error {
	if g.name == "" || g.name == name {
		g.name = name
		return nil
	}
	return fmt.Errorf("%w: %q and %q", ErrMultipleGeometry, g.name, name)
}
